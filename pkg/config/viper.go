package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads config.toml from configDir
// (the working directory when empty), and binds environment variables with
// the FABLE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound by the command)
//  2. Environment variables (FABLE_SERVER_LISTEN, FABLE_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if configDir == "" {
		configDir = "."
	}
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("FABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load unmarshals the viper state over the defaults.
func Load(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("project", d.Project)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.num_workers", d.Server.NumWorkers)
	v.SetDefault("server.queue_size", d.Server.QueueSize)

	// Provider
	v.SetDefault("provider.name", d.Provider.Name)
	v.SetDefault("provider.model", d.Provider.Model)
	v.SetDefault("provider.max_tokens", d.Provider.MaxTokens)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.topic", d.Events.Topic)

	// Prompt
	v.SetDefault("prompt.template", d.Prompt.Template)
}
