package config

// Config is the tstore process configuration. It is loaded once by the
// entry point; nothing else in the module reads configuration on its own.
type Config struct {
	// Store selects the default store and backend.
	Store StoreConfig `json:"store" yaml:"store"`

	// Engine tunes the storage engine.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Tracing configures span export.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StoreConfig holds the process-wide store defaults.
type StoreConfig struct {
	// Name is the store opened when none is given on the command line.
	Name string `json:"name,omitempty" yaml:"name" env:"TSTORE_NAME"`

	// Backend is the default engine backend. Empty means postgresql.
	Backend string `json:"backend,omitempty" yaml:"backend" env:"TSTORE_BACKEND" validate:"omitempty,oneof=sqlite postgresql memory"`

	// ConnectionString is the default option string for Backend.
	ConnectionString string `json:"connection,omitempty" yaml:"connection" env:"TSTORE_CONNECTION"`

	// DataDir is where relative sqlite store names are resolved.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir" env:"TSTORE_DATA_DIR"`
}

// EngineConfig tunes database connection pools.
type EngineConfig struct {
	MaxOpenConns int `json:"max_open_conns,omitempty" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int `json:"max_idle_conns,omitempty" yaml:"max_idle_conns" validate:"gte=0"`

	// ConnMaxLifetime is a Go duration string such as "5m".
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime" validate:"omitempty,duration"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level" env:"TSTORE_LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format string `json:"format,omitempty" yaml:"format" env:"TSTORE_LOG_FORMAT" validate:"omitempty,oneof=console json"`
	Output string `json:"output,omitempty" yaml:"output"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Exporter     string  `json:"exporter,omitempty" yaml:"exporter" env:"TSTORE_TRACE_EXPORTER" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint     string  `json:"endpoint,omitempty" yaml:"endpoint" env:"TSTORE_TRACE_ENDPOINT" validate:"required_if=Exporter otlp"`
	SamplingRate float64 `json:"sampling_rate,omitempty" yaml:"sampling_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `json:"insecure,omitempty" yaml:"insecure"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddress serves /metrics while a command runs. Empty disables it.
	ListenAddress string `json:"listen_address,omitempty" yaml:"listen_address" env:"TSTORE_METRICS_ADDR" validate:"omitempty,hostname_port"`
}
