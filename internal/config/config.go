package config

// Config represents the full worker configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Queue         QueueConfig         `yaml:"queue"`
	Store         StoreConfig         `yaml:"store"`
	Verification  VerificationConfig  `yaml:"verification"`
	Output        OutputConfig        `yaml:"output"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the operational HTTP surface settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Mode    string `yaml:"mode"` // gin mode: debug, release, test
}

// QueueConfig configures the AMQP job consumer. An empty URL disables the
// consumer entirely.
type QueueConfig struct {
	URL         string `yaml:"url"`
	JobQueue    string `yaml:"jobQueue"`
	ResultQueue string `yaml:"resultQueue"`
	Workers     int    `yaml:"workers"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// VerificationConfig configures pipeline execution.
type VerificationConfig struct {
	// RunTimeout bounds one pipeline run, e.g. "30s".
	RunTimeout string `yaml:"runTimeout"`

	// Artifacts enables the JSON and Markdown audit writers.
	Artifacts bool `yaml:"artifacts"`
}

// OutputConfig holds the audit artifact destination.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, human
}
