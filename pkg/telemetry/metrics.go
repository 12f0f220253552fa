package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

// Metrics provides Prometheus metrics for store handles. It implements
// triplestore.Recorder.
type Metrics struct {
	config MetricsConfig

	openAttempts   *prometheus.CounterVec
	handlesCreated *prometheus.CounterVec
	createFailures *prometheus.CounterVec
	createDuration *prometheus.HistogramVec
	handlesOpen    *prometheus.GaugeVec

	registry *prometheus.Registry

	mu     sync.Mutex
	server *http.Server
}

var _ triplestore.Recorder = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op instance; every recording method checks for nil vectors.
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		openAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "open_attempts_total",
				Help:      "Total number of storage open attempts",
			},
			[]string{"backend", "mode", "result"},
		),
		handlesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_created_total",
				Help:      "Total number of handles returned, by open path",
			},
			[]string{"backend", "path"},
		),
		createFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "create_failures_total",
				Help:      "Total number of failed handle constructions, by failure kind",
			},
			[]string{"backend", "kind"},
		),
		createDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "create_duration_seconds",
				Help:      "Duration of successful handle construction in seconds",
				Buckets:   buckets,
			},
			[]string{"backend"},
		),
		handlesOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "handles_open",
				Help:      "Current number of open handles",
			},
			[]string{"backend"},
		),
	}

	registry.MustRegister(
		m.openAttempts,
		m.handlesCreated,
		m.createFailures,
		m.createDuration,
		m.handlesOpen,
	)

	return m, nil
}

// OpenAttempt records one OpenStorage call.
func (m *Metrics) OpenAttempt(backend, mode string, err error) {
	if m.openAttempts == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.openAttempts.WithLabelValues(backend, mode, result).Inc()
}

// HandleCreated records a returned handle and how long construction took.
func (m *Metrics) HandleCreated(backend, mode string, elapsed time.Duration) {
	if m.handlesCreated == nil {
		return
	}
	m.handlesCreated.WithLabelValues(backend, mode).Inc()
	m.createDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
	m.handlesOpen.WithLabelValues(backend).Inc()
}

// CreateFailed records a construction failure.
func (m *Metrics) CreateFailed(backend string, kind triplestore.FailureKind) {
	if m.createFailures == nil {
		return
	}
	m.createFailures.WithLabelValues(backend, string(kind)).Inc()
}

// HandleReleased records a closed handle.
func (m *Metrics) HandleReleased(backend string) {
	if m.handlesOpen == nil {
		return
	}
	m.handlesOpen.WithLabelValues(backend).Dec()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics on ListenAddress. It does nothing when
// metrics are disabled or no address is configured. The address is bound
// before returning, so a busy or invalid address is reported to the caller;
// later serve errors go to logger.
func (m *Metrics) StartMetricsServer(logger *Logger) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	ln, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.config.ListenAddress, err)
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	return nil
}

// Addr returns the address the metrics server listens on, or "" when it is
// not running.
func (m *Metrics) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return ""
	}
	return m.server.Addr
}

// Shutdown stops the metrics server, if one was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	server := m.server
	m.server = nil
	m.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
