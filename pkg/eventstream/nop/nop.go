// Package nop provides a no-op eventstream publisher.
package nop

import (
	"context"

	"github.com/papercompute/fable/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishTurn validates input and otherwise does nothing.
func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	return nil
}

// PublishCompaction validates input and otherwise does nothing.
func (p *Publisher) PublishCompaction(_ context.Context, event *eventstream.MemoryCompactedEvent) error {
	if event == nil {
		return eventstream.ErrNilCompactionEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
