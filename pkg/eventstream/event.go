// Package eventstream defines transport-neutral events emitted by the engine
// and the publisher interface backends implement.
package eventstream

import (
	"time"

	"github.com/papercompute/fable/pkg/chat"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "fable.turn.persisted"

	// EventTypeMemoryCompacted is emitted after a compaction commits a new
	// memory state for a conversation.
	EventTypeMemoryCompacted = "fable.memory.compacted"
)

// EventSource identifies where an event originated.
type EventSource struct {
	Project  string `json:"project,omitempty"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// TurnPersistedEvent is the payload emitted when a turn is persisted.
type TurnPersistedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Turn          *chat.Turn  `json:"turn"`
}

// MemoryCompactedEvent is the payload emitted when a compaction completes.
type MemoryCompactedEvent struct {
	SchemaVersion       int         `json:"schema_version"`
	EventType           string      `json:"event_type"`
	EventID             string      `json:"event_id"`
	EmittedAt           time.Time   `json:"emitted_at"`
	Source              EventSource `json:"source"`
	ConversationID      string      `json:"conversation_id"`
	TurnsCompacted      int         `json:"turns_compacted"`
	PlotPointCount      int         `json:"plot_point_count"`
	LastCompactedAtTurn int         `json:"last_compacted_at_turn"`
}
