// Package servecmder provides the serve command that runs the relay server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercompute/fable/pkg/config"
	"github.com/papercompute/fable/pkg/credentials"
	"github.com/papercompute/fable/pkg/eventstream"
	"github.com/papercompute/fable/pkg/eventstream/kafka"
	"github.com/papercompute/fable/pkg/eventstream/nop"
	"github.com/papercompute/fable/pkg/llm/provider"
	"github.com/papercompute/fable/pkg/logger"
	"github.com/papercompute/fable/pkg/memory"
	"github.com/papercompute/fable/pkg/storage"
	"github.com/papercompute/fable/pkg/storage/inmemory"
	"github.com/papercompute/fable/pkg/storage/postgres"
	"github.com/papercompute/fable/pkg/storage/sqlite"
	"github.com/papercompute/fable/relay"
)

type ServeCommander struct {
	configDir string
	listen    string
	provider  string
	model     string
	debug     bool
	logger    *zap.Logger
}

const serveLongDesc string = `Run the fable relay server.

The relay streams story turns from the configured LLM provider, persists
completed turns, and compacts conversation memory in the background.`

const serveShortDesc string = "Run the relay server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.configDir, "config", "c", "", "Directory holding config.toml (default: working directory)")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (overrides config)")
	cmd.Flags().StringVar(&cmder.provider, "provider", "", "LLM provider (anthropic, openai, ollama; overrides config)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model to request (overrides config)")

	return cmd
}

func (c *ServeCommander) run() error {
	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	// Flags win over file and environment.
	if c.listen != "" {
		cfg.Server.Listen = c.listen
	}
	if c.provider != "" {
		cfg.Provider.Name = c.provider
	}
	if c.model != "" {
		cfg.Provider.Model = c.model
	}

	c.logger = logger.NewLogger(c.debug || cfg.Debug)
	defer c.logger.Sync()

	store, err := c.createStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := c.createPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	credMgr := credentials.NewManager(cfg.Provider.Keys, cfg.Provider.Upstreams)

	prov, err := provider.New(cfg.Provider.Name)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}

	// The summarizer shares the relay's default provider. A key that only
	// arrives per-request leaves compaction without credentials; surface
	// that now instead of on the tenth turn.
	cred, err := credMgr.Resolve(cfg.Provider.Name, "")
	if err != nil {
		return fmt.Errorf("resolving summarizer credential: %w", err)
	}

	source := eventstream.EventSource{
		Project:  cfg.Project,
		Provider: cfg.Provider.Name,
		Model:    cfg.Provider.Model,
	}

	summarizer := memory.NewSummarizer(prov, cred, cfg.Provider.Model, c.logger)
	compactor := memory.NewService(store, summarizer, publisher, source, c.logger)

	server, err := relay.NewServer(&relay.Config{
		ListenAddr:  cfg.Server.Listen,
		Provider:    cfg.Provider.Name,
		Model:       cfg.Provider.Model,
		MaxTokens:   cfg.Provider.MaxTokens,
		Project:     cfg.Project,
		Store:       store,
		Credentials: credMgr,
		Compactor:   compactor,
		Publisher:   publisher,
		Prompts:     relay.NewPromptBuilder(cfg.Prompt.Template),
		NumWorkers:  cfg.Server.NumWorkers,
		QueueSize:   cfg.Server.QueueSize,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

func (c *ServeCommander) createStore(cfg *config.Config) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.SQLitePath == "" {
			return nil, fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
		return sqlite.NewDriver(cfg.Storage.SQLitePath)
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
		return postgres.NewDriver(context.Background(), cfg.Storage.PostgresDSN)
	case "inmemory", "":
		c.logger.Warn("using in-memory storage, conversations will not survive restarts")
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (c *ServeCommander) createPublisher(cfg *config.Config) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "kafka":
		if len(cfg.Events.Brokers) == 0 {
			return nil, fmt.Errorf("events.brokers is required for the kafka provider")
		}
		return kafka.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic), nil
	case "nop", "":
		return nop.NewPublisher(), nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
}
