package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/biosignalml/tstore/pkg/stores"
	"github.com/biosignalml/tstore/pkg/telemetry"
	"github.com/biosignalml/tstore/pkg/triplestore"
)

// ErrUnsupportedFormat is returned for configuration files that are neither
// YAML nor CUE.
var ErrUnsupportedFormat = errors.New("unsupported configuration format")

// configSchema constrains CUE configuration files. It mirrors the struct
// tags in types.go.
const configSchema = `
#Config: {
	store?: {
		name?:       string
		backend?:    "sqlite" | "postgresql" | "memory"
		connection?: string
		data_dir?:   string
	}
	engine?: {
		max_open_conns?:    int & >=0
		max_idle_conns?:    int & >=0
		conn_max_lifetime?: string
	}
	logging?: {
		level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal"
		format?: "console" | "json"
		output?: string
	}
	tracing?: {
		exporter?:      "otlp" | "stdout" | "none"
		endpoint?:      string
		sampling_rate?: number & >=0 & <=1
		insecure?:      bool
	}
	metrics?: {
		listen_address?: string
	}
}
`

// Default returns the configuration used when no file or environment
// variable says otherwise.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:     "none",
			SamplingRate: 1.0,
		},
	}
}

// Load builds the configuration: defaults, then the file at path (if any),
// then TSTORE_* environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the file at path into cfg. Keys absent from the file keep
// their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	case ".cue":
		err = decodeCUE(path, data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty document.
			return nil
		}
		return err
	}
	return nil
}

func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(configSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	val := ctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return cueError(err)
	}

	val = schema.LookupPath(cue.ParsePath("#Config")).Unify(val)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return cueError(err)
	}

	// Going through JSON keeps absent keys from resetting defaults.
	raw, err := val.MarshalJSON()
	if err != nil {
		return cueError(err)
	}
	return json.Unmarshal(raw, cfg)
}

// cueError flattens CUE errors into one message with positions.
func cueError(err error) error {
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		msg := strings.TrimSpace(cueerrors.Details(e, nil))
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			msg = fmt.Sprintf("%s:%d:%d: %s", filepath.Base(pos[0].Filename()), pos[0].Line(), pos[0].Column(), msg)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return err
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ApplyEnv overrides cfg with TSTORE_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks cfg against its struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("duration", isDuration); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func isDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Defaults returns the process-wide store defaults. A backend set in the
// configuration replaces the built-in one; the built-in connection string
// only applies while the backend is the built-in one.
func (c *Config) Defaults() triplestore.Defaults {
	d := triplestore.BuiltinDefaults()
	if c.Store.Backend != "" && c.Store.Backend != d.Backend {
		d = triplestore.Defaults{Backend: c.Store.Backend}
	}
	if c.Store.ConnectionString != "" {
		d.ConnectionString = c.Store.ConnectionString
	}
	return d
}

// StoresConfig returns the storage engine configuration.
func (c *Config) StoresConfig(logger *zerolog.Logger) stores.Config {
	cfg := stores.Config{
		DataDir:      c.Store.DataDir,
		MaxOpenConns: c.Engine.MaxOpenConns,
		MaxIdleConns: c.Engine.MaxIdleConns,
		Logger:       logger,
	}
	if c.Engine.ConnMaxLifetime != "" {
		// Checked by Validate.
		cfg.ConnMaxLifetime, _ = time.ParseDuration(c.Engine.ConnMaxLifetime)
	}
	return cfg
}

// TelemetryConfig returns the telemetry configuration for a build version.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version

	if c.Logging.Level != "" {
		tc.Logging.Level = c.Logging.Level
	}
	if c.Logging.Format != "" {
		tc.Logging.Format = c.Logging.Format
	}
	if c.Logging.Output != "" {
		tc.Logging.Output = c.Logging.Output
	}

	if c.Tracing.Exporter != "" && c.Tracing.Exporter != "none" {
		tc.Tracing.Enabled = true
		tc.Tracing.Exporter = c.Tracing.Exporter
	}
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	tc.Tracing.Insecure = c.Tracing.Insecure

	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	return tc
}
