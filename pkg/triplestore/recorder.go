package triplestore

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Open attempt modes reported to a Recorder.
const (
	ModeOpen   = "open"
	ModeCreate = "create"
)

// Recorder observes handle construction and release. The telemetry package
// provides a Prometheus-backed implementation.
type Recorder interface {
	// OpenAttempt is called after every OpenStorage call. err is nil on success.
	OpenAttempt(backend, mode string, err error)

	// HandleCreated is called when Create returns a handle. mode tells
	// whether the store was opened or had to be created.
	HandleCreated(backend, mode string, elapsed time.Duration)

	// CreateFailed is called when Create gives up.
	CreateFailed(backend string, kind FailureKind)

	// HandleReleased is called once per closed handle.
	HandleReleased(backend string)
}

type nopRecorder struct{}

func (nopRecorder) OpenAttempt(string, string, error) {}
func (nopRecorder) HandleCreated(string, string, time.Duration) {}
func (nopRecorder) CreateFailed(string, FailureKind) {}
func (nopRecorder) HandleReleased(string) {}

// CreateOption configures Create.
type CreateOption func(*createConfig)

type createConfig struct {
	logger   zerolog.Logger
	tracer   trace.Tracer
	recorder Recorder
}

func newCreateConfig(opts []CreateOption) createConfig {
	cfg := createConfig{
		logger:   zerolog.Nop(),
		tracer:   noop.NewTracerProvider().Tracer("triplestore"),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLogger sets the logger used for construction and release.
func WithLogger(l zerolog.Logger) CreateOption {
	return func(c *createConfig) {
		c.logger = l
	}
}

// WithTracer wraps construction in a span from t.
func WithTracer(t trace.Tracer) CreateOption {
	return func(c *createConfig) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithRecorder reports construction and release to r.
func WithRecorder(r Recorder) CreateOption {
	return func(c *createConfig) {
		if r != nil {
			c.recorder = r
		}
	}
}
