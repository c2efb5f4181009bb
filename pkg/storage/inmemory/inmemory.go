// Package inmemory provides a map-backed storage driver, used in tests and
// as the default when no database is configured.
package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercompute/fable/pkg/chat"
	"github.com/papercompute/fable/pkg/storage"
)

// conversation is the per-conversation state held under the driver lock.
type conversation struct {
	turns  []*chat.Turn
	memory chat.MemoryState
	seq    int
}

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards conversations and everything reachable from it.
	mu sync.RWMutex

	conversations map[string]*conversation
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]*conversation),
	}
}

// conversationLocked returns the conversation state, creating it with empty
// defaults on first touch. Callers must hold mu.
func (d *Driver) conversationLocked(conversationID string) *conversation {
	conv, ok := d.conversations[conversationID]
	if !ok {
		conv = &conversation{memory: *chat.NewMemoryState()}
		d.conversations[conversationID] = conv
	}
	return conv
}

func (d *Driver) AppendTurn(_ context.Context, turn *chat.Turn) (*chat.Turn, error) {
	if turn == nil {
		return nil, errors.New("cannot store nil turn")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conv := d.conversationLocked(turn.ConversationID)
	conv.seq++

	stored := *turn
	stored.ID = uuid.NewString()
	stored.Seq = conv.seq
	stored.CreatedAt = time.Now().UTC()

	conv.turns = append(conv.turns, &stored)

	saved := stored
	return &saved, nil
}

func (d *Driver) ListTurns(_ context.Context, conversationID string, limit int) ([]*chat.Turn, error) {
	limit = storage.ClampLimit(limit)

	d.mu.RLock()
	defer d.mu.RUnlock()

	conv, ok := d.conversations[conversationID]
	if !ok {
		return nil, nil
	}

	start := len(conv.turns) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*chat.Turn, 0, len(conv.turns)-start)
	for _, turn := range conv.turns[start:] {
		copied := *turn
		result = append(result, &copied)
	}
	return result, nil
}

func (d *Driver) AssistantTurns(_ context.Context, conversationID string, offset int) ([]*chat.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conv, ok := d.conversations[conversationID]
	if !ok {
		return nil, nil
	}

	var result []*chat.Turn
	seen := 0
	for _, turn := range conv.turns {
		if turn.Role != chat.RoleAssistant {
			continue
		}
		seen++
		if seen <= offset {
			continue
		}
		copied := *turn
		result = append(result, &copied)
	}
	return result, nil
}

func (d *Driver) DeleteTurn(_ context.Context, conversationID, turnID string) (*chat.Turn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv, ok := d.conversations[conversationID]
	if !ok {
		return nil, storage.NotFoundError{TurnID: turnID}
	}

	for i, turn := range conv.turns {
		if turn.ID != turnID {
			continue
		}

		conv.turns = append(conv.turns[:i], conv.turns[i+1:]...)
		if turn.Role == chat.RoleAssistant && conv.memory.CompletedTurnCount > 0 {
			conv.memory.CompletedTurnCount--
		}

		deleted := *turn
		return &deleted, nil
	}

	return nil, storage.NotFoundError{TurnID: turnID}
}

func (d *Driver) Memory(_ context.Context, conversationID string) (*chat.MemoryState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv := d.conversationLocked(conversationID)

	copied := conv.memory
	copied.PlotPoints = append([]string(nil), conv.memory.PlotPoints...)
	return &copied, nil
}

func (d *Driver) IncrementTurnCount(_ context.Context, conversationID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv := d.conversationLocked(conversationID)
	conv.memory.CompletedTurnCount++
	return conv.memory.CompletedTurnCount, nil
}

func (d *Driver) UpdateMemory(_ context.Context, conversationID, summaryText string, plotPoints []string, lastCompactedAtTurn int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv := d.conversationLocked(conversationID)
	conv.memory.SummaryText = summaryText
	conv.memory.PlotPoints = append([]string(nil), plotPoints...)
	conv.memory.LastCompactedAtTurn = lastCompactedAtTurn
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
