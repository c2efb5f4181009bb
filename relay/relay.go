// Package relay is the conversation engine's HTTP server: it streams chat
// turns from an LLM provider to the client over SSE, persists completed
// turns, and schedules background memory compaction.
package relay

import (
	"errors"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercompute/fable/pkg/credentials"
	"github.com/papercompute/fable/pkg/eventstream"
	"github.com/papercompute/fable/pkg/llm/provider"
	"github.com/papercompute/fable/pkg/storage"
	"github.com/papercompute/fable/relay/worker"
)

// Config is the configuration options for the relay server.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string

	// Provider is the default provider when a request names none.
	Provider string

	// Model is the default model when a request names none.
	Model string

	// MaxTokens is the output-token cap forwarded to providers (0 uses the
	// provider default).
	MaxTokens int

	// Project tags emitted events.
	Project string

	// Store is the conversation store.
	Store storage.Driver

	// Credentials resolves provider API keys.
	Credentials *credentials.Manager

	// Compactor runs memory compactions. Required.
	Compactor worker.Compactor

	// Publisher emits turn events. Optional; nil disables publishing.
	Publisher eventstream.Publisher

	// Prompts builds the per-turn system prompt. Defaults to the built-in
	// narrator prompt.
	Prompts PromptBuilder

	// Providers resolves a provider by name. Defaults to provider.New.
	Providers func(name string) (provider.Provider, error)

	// NumWorkers and QueueSize size the compaction worker pool.
	NumWorkers uint
	QueueSize  uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Server is the relay HTTP server.
type Server struct {
	config  *Config
	app     *fiber.App
	pool    *worker.Pool
	metrics *metrics
	logger  *zap.Logger
}

// NewServer creates a relay server and starts its compaction worker pool.
func NewServer(c *Config) (*Server, error) {
	if c.Store == nil {
		return nil, errors.New("relay requires a storage driver")
	}
	if c.Credentials == nil {
		return nil, errors.New("relay requires a credentials manager")
	}
	if c.Compactor == nil {
		return nil, errors.New("relay requires a compactor")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Prompts == nil {
		c.Prompts = NewPromptBuilder("")
	}
	if c.Providers == nil {
		c.Providers = provider.New
	}

	pool, err := worker.NewPool(&worker.Config{
		Compactor:  c.Compactor,
		NumWorkers: c.NumWorkers,
		QueueSize:  c.QueueSize,
		Logger:     c.Logger,
	})
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  c,
		app:     app,
		pool:    pool,
		metrics: newMetrics(),
		logger:  c.Logger,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(s.metrics.handler()))

	app.Post("/v1/chat/stream", s.handleChatStream)
	app.Post("/v1/conversations/:id/compact", s.handleCompact)
	app.Get("/v1/conversations/:id/turns", s.handleListTurns)
	app.Delete("/v1/conversations/:id/turns/last-pair", s.handleDeleteLastPair)
	app.Delete("/v1/conversations/:id/turns/:turnID", s.handleDeleteTurn)

	return s, nil
}

// Run starts the relay server on the configured address and blocks.
func (s *Server) Run() error {
	s.logger.Info("starting relay server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("provider", s.config.Provider),
		zap.String("model", s.config.Model),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener. Used in tests.
func (s *Server) RunWithListener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the HTTP server, then drains the compaction pool.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.pool.Close()
	return err
}

// enqueueCompaction hands a compaction job to the worker pool.
func (s *Server) enqueueCompaction(conversationID, reason string) bool {
	return s.pool.Enqueue(worker.Job{ConversationID: conversationID, Reason: reason})
}
