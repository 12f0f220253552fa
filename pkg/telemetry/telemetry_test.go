package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "otlp", mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp"; c.Tracing.Endpoint = "collector:4317" }},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service name"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{name: "jaeger", mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, wantErr: "invalid trace exporter"},
		{name: "otlp without endpoint", mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, wantErr: "endpoint"},
		{name: "sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: "sampling rate"},
		{name: "async without buffer", mutate: func(c *Config) { c.Events.EnableAsync = true; c.Events.BufferSize = 0 }, wantErr: "buffer size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMetrics_Recorder(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	m.OpenAttempt("sqlite", triplestore.ModeOpen, errors.New("missing"))
	m.OpenAttempt("sqlite", triplestore.ModeCreate, nil)
	m.HandleCreated("sqlite", triplestore.ModeCreate, 20*time.Millisecond)
	m.CreateFailed("postgresql", triplestore.FailureStorageOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.openAttempts.WithLabelValues("sqlite", "open", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openAttempts.WithLabelValues("sqlite", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlesCreated.WithLabelValues("sqlite", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.createFailures.WithLabelValues("postgresql", "storage_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlesOpen.WithLabelValues("sqlite")))

	m.HandleReleased("sqlite")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.handlesOpen.WithLabelValues("sqlite")))
}

func TestMetrics_Handler(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)
	m.HandleCreated("memory", triplestore.ModeOpen, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tstore_handles_created_total{backend="memory",path="open"} 1`)
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	// Every recording method is a no-op.
	m.OpenAttempt("sqlite", "open", nil)
	m.HandleCreated("sqlite", "open", time.Second)
	m.CreateFailed("sqlite", triplestore.FailureSessionInit)
	m.HandleReleased("sqlite")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, m.StartMetricsServer(discardLogger()))
	assert.Empty(t, m.Addr())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func discardLogger() *Logger {
	return NewLoggerWithWriter(io.Discard, LoggingConfig{Level: "error", Format: "json"})
}

func TestMetrics_Server(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.ListenAddress = "127.0.0.1:0"
	m, err := NewMetrics(cfg)
	require.NoError(t, err)
	m.HandleCreated("sqlite", triplestore.ModeCreate, time.Millisecond)

	require.NoError(t, m.StartMetricsServer(discardLogger()))
	defer m.Shutdown(context.Background())
	require.NotEmpty(t, m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `tstore_handles_created_total{backend="sqlite",path="create"} 1`)
}

func TestMetrics_ServerAddressInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := DefaultConfig().Metrics
	cfg.ListenAddress = busy.Addr().String()
	m, err := NewMetrics(cfg)
	require.NoError(t, err)

	err = m.StartMetricsServer(discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), busy.Addr().String())
	assert.Empty(t, m.Addr())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestEventPublisher_Sync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	require.NoError(t, err)

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByStore("a"))

	require.NoError(t, ep.PublishStoreCreated("a", "sqlite"))
	require.NoError(t, ep.PublishStoreCreated("b", "sqlite"))
	require.NoError(t, ep.PublishCreateFailed("a", "sqlite", "storage_open"))

	require.Len(t, got, 2)
	assert.Equal(t, EventTypeStoreCreated, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, EventLevelError, got[1].Level)
	assert.Equal(t, "storage_open", got[1].Data["kind"])

	require.NoError(t, ep.Shutdown(context.Background()))
	assert.ErrorIs(t, ep.PublishStoreCreated("a", "sqlite"), ErrPublisherStopped)
}

func TestEventPublisher_AsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 16})
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		got []string
	)
	ep.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}, nil)

	ep.AddFilter(FilterByType(EventTypeHandleOpened, EventTypeHandleReleased))
	require.NoError(t, ep.PublishHandleOpened("s", "memory", "open", time.Millisecond))
	require.NoError(t, ep.PublishStoreCreated("s", "memory"))
	require.NoError(t, ep.PublishHandleReleased("s", "memory"))

	require.NoError(t, ep.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventTypeHandleOpened, EventTypeHandleReleased}, got)
}

func TestEventPublisher_LogSubscriber(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LoggingConfig{Level: "debug", Format: "json"})

	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	require.NoError(t, err)
	ep.Subscribe(LogSubscriber(logger), nil)

	require.NoError(t, ep.PublishOpenFallback("recordings", "sqlite", "no such store"))
	require.NoError(t, ep.PublishStoreCreated("recordings", "sqlite"))

	out := buf.String()
	for _, want := range []string{
		`"event":"handle.open_fallback"`,
		`"reason":"no such store"`,
		`"event":"store.created"`,
		`"store":"recordings"`,
		`"level":"debug"`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestEventPublisher_Disabled(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	require.NoError(t, err)

	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	assert.NoError(t, ep.PublishHandleReleased("s", "memory"))
	assert.False(t, called)
	assert.NoError(t, ep.Shutdown(context.Background()))
}

func TestTelemetry_StoreRecorder(t *testing.T) {
	cfg := DefaultConfig()
	tel, err := NewTelemetryWithLogger(cfg, NewLoggerWithWriter(&bytes.Buffer{}, cfg.Logging))
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	var types []string
	tel.Events.Subscribe(func(e Event) {
		assert.Equal(t, "recordings", e.Store)
		types = append(types, e.Type)
	}, nil)

	rec := tel.Recorder("recordings")
	rec.OpenAttempt("sqlite", triplestore.ModeOpen, errors.New("no such store"))
	rec.OpenAttempt("sqlite", triplestore.ModeCreate, nil)
	rec.HandleCreated("sqlite", triplestore.ModeCreate, time.Millisecond)
	rec.HandleReleased("sqlite")
	rec.CreateFailed("sqlite", triplestore.FailureOptionsParse)

	assert.Equal(t, []string{
		EventTypeOpenFallback,
		EventTypeStoreCreated,
		EventTypeHandleOpened,
		EventTypeHandleReleased,
		EventTypeCreateFailed,
	}, types)
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Metrics.createFailures.WithLabelValues("sqlite", "options_parse")))
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf, LoggingConfig{Level: "debug", Format: "json"})

	l.NewComponentLogger("cli").WithStore("recordings", "sqlite").WithSessionID("abc").Info("opened")

	out := buf.String()
	for _, want := range []string{`"component":"cli"`, `"store":"recordings"`, `"backend":"sqlite"`, `"session_id":"abc"`, `"message":"opened"`} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	l.Debug("visible")
	NewLoggerWithWriter(&buf, LoggingConfig{Level: "warn", Format: "json"}).Info("hidden")
	assert.Contains(t, buf.String(), "visible")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestLogger_Context(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf, LoggingConfig{Level: "info", Format: "json"})

	ctx := l.WithContext(context.Background())
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestStartStoreOperation_WithoutTelemetry(t *testing.T) {
	op := StartStoreOperation(context.Background(), "noop", "recordings", "memory")
	assert.Nil(t, op.Span)
	assert.GreaterOrEqual(t, op.End(errors.New("ignored")), time.Duration(0))
}

func TestStartStoreOperation_WithTelemetry(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	tel, err := NewTelemetryWithLogger(cfg, NewLoggerWithWriter(&buf, cfg.Logging))
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	op := StartStoreOperation(ctx, "add", "recordings", "sqlite")
	require.NotNil(t, op.Span)

	op.Logger.Debug("adding")
	assert.Same(t, op.Logger, FromContext(op.Ctx))

	_, err = triplestore.Create(op.Ctx, failingEngine{}, triplestore.Params{Name: "recordings", Backend: "sqlite"})
	op.End(err)

	out := buf.String()
	assert.Contains(t, out, `"store":"recordings"`)
	assert.Contains(t, out, `"operation":"add"`)
	assert.Contains(t, out, `"trace_id"`)
}

func TestTelemetry_CreateOptions(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	tel, err := NewTelemetryWithLogger(cfg, NewLoggerWithWriter(&buf, cfg.Logging))
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	_, err = triplestore.Create(context.Background(), failingEngine{}, triplestore.Params{Name: "x", Backend: "sqlite"}, tel.CreateOptions("x")...)
	require.True(t, triplestore.IsSessionInit(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Metrics.createFailures.WithLabelValues("sqlite", "session_init")))
	assert.True(t, strings.Contains(buf.String(), `"component":"triplestore"`), buf.String())
}

type failingEngine struct{}

func (failingEngine) NewSession(context.Context) (triplestore.Session, error) {
	return nil, errors.New("engine down")
}
