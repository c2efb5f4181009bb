package config

const (
	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

const (
	defaultListen     = ":8080"
	defaultNumWorkers = 3
	defaultQueueSize  = 256

	defaultProvider = "ollama"
	defaultModel    = "llama3.1"

	defaultStorageDriver = "inmemory"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "fable.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen:     defaultListen,
			NumWorkers: defaultNumWorkers,
			QueueSize:  defaultQueueSize,
		},
		Provider: ProviderConfig{
			Name:  defaultProvider,
			Model: defaultModel,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
