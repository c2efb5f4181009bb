// Package config loads the fable configuration from config.toml, FABLE_
// environment variables, and built-in defaults.
package config

// Config represents the full fable configuration. The TOML layout uses
// sections for logical grouping.
type Config struct {
	Version  int            `mapstructure:"version" toml:"version"`
	Debug    bool           `mapstructure:"debug" toml:"debug,omitempty"`
	Project  string         `mapstructure:"project" toml:"project,omitempty"`
	Server   ServerConfig   `mapstructure:"server" toml:"server"`
	Provider ProviderConfig `mapstructure:"provider" toml:"provider"`
	Storage  StorageConfig  `mapstructure:"storage" toml:"storage"`
	Events   EventsConfig   `mapstructure:"events" toml:"events"`
	Prompt   PromptConfig   `mapstructure:"prompt" toml:"prompt"`
}

// ServerConfig holds relay server settings.
type ServerConfig struct {
	Listen     string `mapstructure:"listen" toml:"listen,omitempty"`
	NumWorkers uint   `mapstructure:"num_workers" toml:"num_workers,omitempty"`
	QueueSize  uint   `mapstructure:"queue_size" toml:"queue_size,omitempty"`
}

// ProviderConfig holds the default LLM provider and per-provider overrides.
type ProviderConfig struct {
	Name      string            `mapstructure:"name" toml:"name,omitempty"`
	Model     string            `mapstructure:"model" toml:"model,omitempty"`
	MaxTokens int               `mapstructure:"max_tokens" toml:"max_tokens,omitempty"`
	Keys      map[string]string `mapstructure:"keys" toml:"keys,omitempty"`
	Upstreams map[string]string `mapstructure:"upstreams" toml:"upstreams,omitempty"`
}

// StorageConfig selects and configures the conversation store backend.
type StorageConfig struct {
	Driver      string `mapstructure:"driver" toml:"driver,omitempty"`
	SQLitePath  string `mapstructure:"sqlite_path" toml:"sqlite_path,omitempty"`
	PostgresDSN string `mapstructure:"postgres_dsn" toml:"postgres_dsn,omitempty"`
}

// EventsConfig selects and configures the eventstream backend.
type EventsConfig struct {
	Provider string   `mapstructure:"provider" toml:"provider,omitempty"`
	Brokers  []string `mapstructure:"brokers" toml:"brokers,omitempty"`
	Topic    string   `mapstructure:"topic" toml:"topic,omitempty"`
}

// PromptConfig holds the narrator prompt template. The literal "{storyId}"
// is substituted per request.
type PromptConfig struct {
	Template string `mapstructure:"template" toml:"template,omitempty"`
}
