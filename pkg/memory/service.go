package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercompute/fable/pkg/chat"
	"github.com/papercompute/fable/pkg/eventstream"
	"github.com/papercompute/fable/pkg/storage"
)

// Compactor summarizes uncompacted turns against a prior memory state. It is
// satisfied by *Summarizer and stubbed in tests.
type Compactor interface {
	Compact(ctx context.Context, turns []*chat.Turn, prior *chat.MemoryState) (*Result, error)
}

// Service runs compactions against the conversation store.
type Service struct {
	store     storage.Driver
	compactor Compactor
	publisher eventstream.Publisher
	source    eventstream.EventSource
	log       *zap.Logger
}

// NewService creates a compaction service. The publisher may be nil, in which
// case no events are emitted.
func NewService(store storage.Driver, compactor Compactor, publisher eventstream.Publisher, source eventstream.EventSource, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		compactor: compactor,
		publisher: publisher,
		source:    source,
		log:       log,
	}
}

// CompactionResult reports the outcome of a compaction run.
type CompactionResult struct {
	// Memory is the committed memory state, or the unchanged prior state
	// when there was nothing to compact.
	Memory *chat.MemoryState

	// TurnsCompacted is how many assistant turns this run folded in.
	TurnsCompacted int
}

// CompactConversation summarizes all assistant turns produced since the last
// compaction and commits the result. On any failure the stored memory state
// is left untouched; the next trigger retries over the accumulated backlog.
func (s *Service) CompactConversation(ctx context.Context, conversationID string) (*CompactionResult, error) {
	mem, err := s.store.Memory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}

	turns, err := s.store.AssistantTurns(ctx, conversationID, mem.LastCompactedAtTurn)
	if err != nil {
		return nil, fmt.Errorf("load uncompacted turns: %w", err)
	}
	if len(turns) == 0 {
		return &CompactionResult{Memory: mem}, nil
	}

	result, err := s.compactor.Compact(ctx, turns, mem)
	if err != nil {
		return nil, err
	}

	lastCompacted := mem.LastCompactedAtTurn + len(turns)
	if err := s.store.UpdateMemory(ctx, conversationID, result.Summary, result.PlotPoints, lastCompacted); err != nil {
		return nil, fmt.Errorf("commit memory: %w", err)
	}

	s.log.Info("compacted conversation memory",
		zap.String("conversation_id", conversationID),
		zap.Int("turns_compacted", len(turns)),
		zap.Int("plot_points", len(result.PlotPoints)))

	updated := &chat.MemoryState{
		SummaryText:         result.Summary,
		PlotPoints:          result.PlotPoints,
		CompletedTurnCount:  mem.CompletedTurnCount,
		LastCompactedAtTurn: lastCompacted,
	}

	s.publishCompaction(ctx, conversationID, updated, len(turns))

	return &CompactionResult{
		Memory:         updated,
		TurnsCompacted: len(turns),
	}, nil
}

// publishCompaction emits the compaction event. Publish failures are logged,
// never surfaced: the compaction itself already committed.
func (s *Service) publishCompaction(ctx context.Context, conversationID string, mem *chat.MemoryState, turnsCompacted int) {
	if s.publisher == nil {
		return
	}

	event := &eventstream.MemoryCompactedEvent{
		SchemaVersion:       eventstream.SchemaVersionV1,
		EventType:           eventstream.EventTypeMemoryCompacted,
		EventID:             uuid.NewString(),
		EmittedAt:           time.Now().UTC(),
		Source:              s.source,
		ConversationID:      conversationID,
		TurnsCompacted:      turnsCompacted,
		PlotPointCount:      len(mem.PlotPoints),
		LastCompactedAtTurn: mem.LastCompactedAtTurn,
	}
	if err := s.publisher.PublishCompaction(ctx, event); err != nil {
		s.log.Warn("failed to publish compaction event",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}
