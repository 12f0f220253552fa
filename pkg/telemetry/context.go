package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

// Telemetry combines logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return newTelemetry(cfg, logger)
}

// NewTelemetryWithLogger is NewTelemetry with a caller-supplied logger.
func NewTelemetryWithLogger(cfg *Config, logger *Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment, cfg.ResourceAttributes)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// CreateOptions returns the triplestore options that route a handle's
// logs, spans, metrics and events for store through t.
func (t *Telemetry) CreateOptions(store string) []triplestore.CreateOption {
	return []triplestore.CreateOption{
		triplestore.WithLogger(t.Logger.NewComponentLogger("triplestore").Zerolog()),
		triplestore.WithTracer(t.Tracer.Tracer()),
		triplestore.WithRecorder(t.Recorder(store)),
	}
}

// Shutdown stops all telemetry components in reverse order of
// initialization and reports every failure.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Events.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Metrics.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StartMetricsServer starts the metrics HTTP server if one is configured.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer(t.Logger.NewComponentLogger("metrics"))
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartStoreOperation begins an instrumented operation on a named store,
// with a store span, a store-scoped logger and a timer.
func StartStoreOperation(ctx context.Context, operation, store, backend string) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx).WithStore(store, backend),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartStoreSpan(ctx, operation, store, backend)

	logger := tel.Logger.WithStore(store, backend).WithField("operation", operation)
	if traceID := TraceID(spanCtx); traceID != "" {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": traceID,
			"span_id":  SpanID(spanCtx),
		})
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// HandleOpened records the session and open mode of h on the operation.
func (ic *InstrumentedContext) HandleOpened(h *triplestore.Handle) {
	mode := triplestore.ModeOpen
	if h.Created() {
		mode = triplestore.ModeCreate
	}
	sessionID := h.Session().ID()

	ic.Logger = ic.Logger.WithSessionID(sessionID)
	ic.Ctx = ic.Logger.WithContext(ic.Ctx)
	if ic.Span != nil {
		AddEvent(ic.Span, "store.handle_open",
			AttrSessionID.String(sessionID),
			AttrOpenMode.String(mode),
		)
	}
	ic.Logger.WithField("mode", mode).Debug("store handle open")
}

// End finishes the instrumented operation, recording success or failure.
// Failures from triplestore.Create are tagged with their kind.
func (ic *InstrumentedContext) End(err error) time.Duration {
	elapsed := ic.Timer.Duration()
	if ic.Span != nil {
		if err != nil {
			if kind := triplestore.KindOf(err); kind != "" {
				ic.Span.SetAttributes(AttrFailureKind.String(string(kind)))
			}
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
	return elapsed
}
