package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercompute/fable/pkg/chat"
	"github.com/papercompute/fable/pkg/eventstream"
	"github.com/papercompute/fable/pkg/extract"
	"github.com/papercompute/fable/pkg/llm"
	"github.com/papercompute/fable/pkg/memory"
	"github.com/papercompute/fable/pkg/utils"
)

// chatStreamRequest is the body of POST /v1/chat/stream.
type chatStreamRequest struct {
	ConversationID string `json:"conversationId"`
	UserMessage    string `json:"userMessage"`
	StoryID        string `json:"storyId"`

	// Optional overrides.
	Speaker  string `json:"speaker"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
}

// streamEvent is one SSE data line: a partial chunk, or the terminal success
// line carrying the full accumulated text and the saved turn. A terminal
// error is sent as a bare llm.ErrorResponse instead.
type streamEvent struct {
	Text         string     `json:"text"`
	Done         bool       `json:"done"`
	FullText     string     `json:"fullText,omitempty"`
	SavedMessage *chat.Turn `json:"savedMessage,omitempty"`
}

// handleChatStream relays one chat turn: it persists the user message,
// streams the provider's reply to the client as SSE, persists the extracted
// assistant turn on success, and schedules compaction when the trigger rule
// fires. Nothing assistant-side is persisted on failure.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	var req chatStreamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if req.ConversationID == "" || req.UserMessage == "" || req.StoryID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "conversationId, userMessage, and storyId are required"})
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = s.config.Provider
	}
	model := req.Model
	if model == "" {
		model = s.config.Model
	}

	prov, err := s.config.Providers(providerName)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	// Resolve the credential before touching the network or the store: a
	// missing key fails the stream immediately with a terminal event.
	cred, err := s.config.Credentials.Resolve(providerName, req.APIKey)
	if err != nil {
		s.logger.Warn("credential resolution failed",
			zap.String("provider", providerName),
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		s.metrics.streamErrors.WithLabelValues(providerName).Inc()
		return s.sendTerminalError(c, err.Error())
	}

	// The request context dies when the handler returns; storage and
	// upstream calls outlive it.
	ctx := context.Background()

	userTurn, err := s.config.Store.AppendTurn(ctx, &chat.Turn{
		ConversationID: req.ConversationID,
		Role:           chat.RoleUser,
		Speaker:        req.Speaker,
		Text:           req.UserMessage,
	})
	if err != nil {
		s.logger.Error("failed to persist user turn", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to persist message"})
	}
	s.metrics.turnsPersisted.WithLabelValues(chat.RoleUser).Inc()
	s.publishTurn(ctx, providerName, model, userTurn)

	history, err := s.config.Store.ListTurns(ctx, req.ConversationID, 0)
	if err != nil {
		s.logger.Error("failed to load history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load history"})
	}

	mem, err := s.config.Store.Memory(ctx, req.ConversationID)
	if err != nil {
		s.logger.Error("failed to load memory", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load memory"})
	}

	chatReq := &llm.ChatRequest{
		Model:     model,
		System:    s.config.Prompts.Build(req.StoryID, mem),
		Messages:  historyMessages(history),
		MaxTokens: s.config.MaxTokens,
	}

	// Cancelable upstream context: a client disconnect mid-stream cancels
	// the provider call.
	upstreamCtx, cancelUpstream := context.WithCancel(ctx)

	startTime := time.Now()
	stream, err := prov.StreamChat(upstreamCtx, cred, chatReq)
	if err != nil {
		cancelUpstream()
		s.logger.Error("upstream stream failed to open",
			zap.String("provider", providerName),
			zap.String("model", model),
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		s.metrics.streamErrors.WithLabelValues(providerName).Inc()
		return s.sendTerminalError(c, err.Error())
	}

	setSSEHeaders(c)

	// io.Pipe + SetBodyStream for true per-chunk streaming: pw.Write blocks
	// until fasthttp's chunked writer consumes the data, giving direct
	// backpressure instead of buffering the whole response.
	pr, pw := io.Pipe()
	go s.pumpStream(pumpArgs{
		pw:             pw,
		stream:         stream,
		cancelUpstream: cancelUpstream,
		providerName:   providerName,
		model:          model,
		conversationID: req.ConversationID,
		speaker:        req.Speaker,
		startTime:      startTime,
	})

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

type pumpArgs struct {
	pw             *io.PipeWriter
	stream         llm.Stream
	cancelUpstream context.CancelFunc
	providerName   string
	model          string
	conversationID string
	speaker        string
	startTime      time.Time
}

// pumpStream forwards provider chunks to the SSE pipe and finalizes the turn.
// It runs in its own goroutine after the fiber handler has returned.
func (s *Server) pumpStream(args pumpArgs) {
	defer args.pw.Close()
	defer args.stream.Close()
	defer args.cancelUpstream()

	var accumulated []byte
	var stopReason string

	for {
		chunk, err := args.stream.Next()
		if err != nil {
			s.logger.Error("stream failed",
				zap.String("provider", args.providerName),
				zap.String("model", args.model),
				zap.String("conversation_id", args.conversationID),
				zap.Duration("elapsed", time.Since(args.startTime)),
				zap.Error(err),
			)
			s.metrics.streamErrors.WithLabelValues(args.providerName).Inc()
			s.writeEvent(args.pw, llm.ErrorResponse{Error: err.Error()})
			return
		}

		if chunk.Done {
			// Some providers attach trailing content to the done chunk.
			if chunk.Text != "" {
				accumulated = append(accumulated, chunk.Text...)
				if !s.writeEvent(args.pw, streamEvent{Text: chunk.Text}) {
					s.logger.Warn("client disconnected mid-stream",
						zap.String("conversation_id", args.conversationID),
						zap.Duration("elapsed", time.Since(args.startTime)),
					)
					return
				}
			}
			stopReason = chunk.StopReason
			break
		}

		if chunk.Text == "" {
			continue
		}

		accumulated = append(accumulated, chunk.Text...)
		if !s.writeEvent(args.pw, streamEvent{Text: chunk.Text}) {
			// Client went away: drop the turn entirely. The user can
			// resend; persisting half a reply would corrupt history.
			s.logger.Warn("client disconnected mid-stream",
				zap.String("conversation_id", args.conversationID),
				zap.Duration("elapsed", time.Since(args.startTime)),
			)
			return
		}
	}

	fullText := string(accumulated)
	if fullText == "" {
		err := llm.EmptyCompletionError{Provider: args.providerName, StopReason: stopReason}
		s.logger.Error("empty completion",
			zap.String("provider", args.providerName),
			zap.String("model", args.model),
			zap.String("conversation_id", args.conversationID),
			zap.String("stop_reason", stopReason),
		)
		s.metrics.streamErrors.WithLabelValues(args.providerName).Inc()
		s.writeEvent(args.pw, llm.ErrorResponse{Error: err.Error()})
		return
	}

	ctx := context.Background()

	saved, err := s.config.Store.AppendTurn(ctx, &chat.Turn{
		ConversationID: args.conversationID,
		Role:           chat.RoleAssistant,
		Speaker:        args.speaker,
		Text:           extract.Extract(fullText),
	})
	if err != nil {
		s.logger.Error("failed to persist assistant turn",
			zap.String("conversation_id", args.conversationID),
			zap.Error(err),
		)
		s.metrics.streamErrors.WithLabelValues(args.providerName).Inc()
		s.writeEvent(args.pw, llm.ErrorResponse{Error: "failed to persist turn"})
		return
	}
	s.metrics.turnsPersisted.WithLabelValues(chat.RoleAssistant).Inc()
	s.metrics.streamDuration.Observe(time.Since(args.startTime).Seconds())
	s.publishTurn(ctx, args.providerName, args.model, saved)

	s.logger.Debug("turn complete",
		zap.String("conversation_id", args.conversationID),
		zap.String("preview", utils.Truncate(saved.Text, 80)),
		zap.Duration("elapsed", time.Since(args.startTime)),
	)

	s.writeEvent(args.pw, streamEvent{
		Done:         true,
		FullText:     fullText,
		SavedMessage: saved,
	})

	s.scheduleCompaction(ctx, args.conversationID)
}

// scheduleCompaction bumps the completed-turn counter and enqueues a
// background compaction when the trigger rule fires.
func (s *Server) scheduleCompaction(ctx context.Context, conversationID string) {
	completed, err := s.config.Store.IncrementTurnCount(ctx, conversationID)
	if err != nil {
		s.logger.Error("failed to increment turn count",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}

	mem, err := s.config.Store.Memory(ctx, conversationID)
	if err != nil {
		s.logger.Error("failed to load memory for trigger check",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}

	if !memory.ShouldCompact(completed, mem.LastCompactedAtTurn) {
		return
	}

	reason := "overdue"
	if completed%memory.CompactionCadence == 0 {
		reason = "cadence"
	}

	if s.enqueueCompaction(conversationID, reason) {
		s.metrics.compactionsScheduled.Inc()
	}
}

// writeEvent writes one SSE data line. Returns false when the client is gone.
func (s *Server) writeEvent(w io.Writer, event any) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal stream event", zap.Error(err))
		return false
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	return true
}

// sendTerminalError responds with a single-line SSE stream holding one
// terminal error event, before any streaming has begun.
func (s *Server) sendTerminalError(c *fiber.Ctx, message string) error {
	setSSEHeaders(c)
	payload, err := json.Marshal(llm.ErrorResponse{Error: message})
	if err != nil {
		return err
	}
	return c.SendString("data: " + string(payload) + "\n\n")
}

func setSSEHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
}

// historyMessages converts stored turns into provider messages, oldest first.
func historyMessages(turns []*chat.Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser, chat.RoleAssistant:
			messages = append(messages, llm.NewMessage(turn.Role, turn.Text))
		}
	}
	return messages
}

// publishTurn emits a turn-persisted event; failures are logged only.
func (s *Server) publishTurn(ctx context.Context, providerName, model string, turn *chat.Turn) {
	if s.config.Publisher == nil {
		return
	}

	event := &eventstream.TurnPersistedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: eventstream.EventSource{
			Project:  s.config.Project,
			Provider: providerName,
			Model:    model,
		},
		Turn: turn,
	}
	if err := s.config.Publisher.PublishTurn(ctx, event); err != nil {
		s.logger.Warn("failed to publish turn event",
			zap.String("conversation_id", turn.ConversationID),
			zap.Error(err),
		)
	}
}
