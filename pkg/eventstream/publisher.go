package eventstream

import "context"

// Publisher publishes engine events to an event stream backend.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnPersistedEvent) error
	PublishCompaction(ctx context.Context, event *MemoryCompactedEvent) error
	Close() error
}
