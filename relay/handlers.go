package relay

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercompute/fable/pkg/chat"
	"github.com/papercompute/fable/pkg/llm"
	"github.com/papercompute/fable/pkg/storage"
)

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "pong"})
}

// compactResponse is the body of a successful manual compaction.
type compactResponse struct {
	Success       bool     `json:"success"`
	Summary       string   `json:"summary"`
	NewSummary    string   `json:"newSummary"`
	KeyPlotPoints []string `json:"keyPlotPoints"`
	MessageCount  int      `json:"messageCount"`
}

// handleCompact runs a compaction synchronously and returns the new memory.
func (s *Server) handleCompact(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	prior, err := s.config.Store.Memory(c.UserContext(), conversationID)
	if err != nil {
		s.logger.Error("failed to load memory", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load memory"})
	}

	result, err := s.config.Compactor.CompactConversation(c.UserContext(), conversationID)
	if err != nil {
		s.logger.Error("manual compaction failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(compactResponse{
		Success:       true,
		Summary:       prior.SummaryText,
		NewSummary:    result.Memory.SummaryText,
		KeyPlotPoints: result.Memory.PlotPoints,
		MessageCount:  result.TurnsCompacted,
	})
}

// handleListTurns returns the most recent turns in chronological order.
// The limit query parameter defaults to 20 and is clamped to [1, 1000].
func (s *Server) handleListTurns(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	limit := c.QueryInt("limit", 0)

	turns, err := s.config.Store.ListTurns(c.UserContext(), conversationID, limit)
	if err != nil {
		s.logger.Error("failed to list turns", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list turns"})
	}

	if turns == nil {
		turns = []*chat.Turn{}
	}
	return c.JSON(fiber.Map{"turns": turns})
}

// handleDeleteTurn deletes one turn by id. Deleting an assistant turn also
// decrements the conversation's completed-turn counter (in the driver).
func (s *Server) handleDeleteTurn(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	turnID := c.Params("turnID")

	deleted, err := s.config.Store.DeleteTurn(c.UserContext(), conversationID, turnID)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: notFound.Error()})
		}
		s.logger.Error("failed to delete turn", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to delete turn"})
	}

	return c.JSON(fiber.Map{"deleted": deleted})
}

// handleDeleteLastPair deletes the trailing user/assistant pair, used by
// clients to implement "regenerate".
func (s *Server) handleDeleteLastPair(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	ctx := c.UserContext()

	turns, err := s.config.Store.ListTurns(ctx, conversationID, 2)
	if err != nil {
		s.logger.Error("failed to list turns", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list turns"})
	}

	if len(turns) < 2 || turns[0].Role != chat.RoleUser || turns[1].Role != chat.RoleAssistant {
		return c.Status(fiber.StatusConflict).JSON(llm.ErrorResponse{Error: "conversation does not end with a user/assistant pair"})
	}

	deleted := make([]*chat.Turn, 0, 2)
	// Assistant turn first so the counter decrement happens even if the
	// second delete fails.
	for _, turn := range []*chat.Turn{turns[1], turns[0]} {
		d, err := s.config.Store.DeleteTurn(ctx, conversationID, turn.ID)
		if err != nil {
			s.logger.Error("failed to delete turn", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to delete turn"})
		}
		deleted = append(deleted, d)
	}

	return c.JSON(fiber.Map{"deleted": deleted})
}
