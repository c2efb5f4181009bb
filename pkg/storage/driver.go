// Package storage defines the conversation store: an append-only turn log
// plus one mutable memory-state record per conversation.
package storage

import (
	"context"

	"github.com/papercompute/fable/pkg/chat"
)

// ListTurns limit bounds. Requests outside the range are clamped.
const (
	DefaultTurnLimit = 20
	MaxTurnLimit     = 1000
)

// Driver is the interface for persisting and retrieving turns and memory
// state in a storage backend.
//
// Counter bookkeeping is the driver's responsibility: IncrementTurnCount and
// DeleteTurn must each be atomic so the completed-turn counter never drifts
// from the persisted history under concurrent use.
type Driver interface {
	// AppendTurn persists a new immutable turn, assigning its ID, Seq, and
	// CreatedAt. The returned turn is the persisted record.
	AppendTurn(ctx context.Context, turn *chat.Turn) (*chat.Turn, error)

	// ListTurns returns the most recent limit turns of a conversation in
	// chronological order. The limit is clamped to [1, MaxTurnLimit];
	// zero or negative selects DefaultTurnLimit.
	ListTurns(ctx context.Context, conversationID string, limit int) ([]*chat.Turn, error)

	// AssistantTurns returns the conversation's assistant turns in
	// chronological order, skipping the first offset of them. An offset of
	// MemoryState.LastCompactedAtTurn therefore yields exactly the turns
	// not yet covered by a compaction.
	AssistantTurns(ctx context.Context, conversationID string, offset int) ([]*chat.Turn, error)

	// DeleteTurn removes a single turn by id and returns the deleted
	// record. If the turn was assistant-authored, the conversation's
	// CompletedTurnCount is decremented in the same operation.
	DeleteTurn(ctx context.Context, conversationID, turnID string) (*chat.Turn, error)

	// Memory returns the conversation's memory state, creating the empty
	// default if none exists yet.
	Memory(ctx context.Context, conversationID string) (*chat.MemoryState, error)

	// IncrementTurnCount atomically increments CompletedTurnCount after an
	// assistant turn is persisted and returns the new value.
	IncrementTurnCount(ctx context.Context, conversationID string) (int, error)

	// UpdateMemory commits a compaction result: summary, plot points, and
	// the turn-count watermark, written as one record (last writer wins).
	// CompletedTurnCount is not touched.
	UpdateMemory(ctx context.Context, conversationID, summaryText string, plotPoints []string, lastCompactedAtTurn int) error

	// Close closes the store and releases any resources.
	Close() error
}

// ClampLimit applies the ListTurns limit rules.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTurnLimit
	}
	if limit > MaxTurnLimit {
		return MaxTurnLimit
	}
	return limit
}
