package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/biosignalml/tstore/pkg/config"
	"github.com/biosignalml/tstore/pkg/stores"
	"github.com/biosignalml/tstore/pkg/telemetry"
	"github.com/biosignalml/tstore/pkg/triplestore"
)

// shutdownTimeout bounds telemetry shutdown after a command.
const shutdownTimeout = 5 * time.Second

// app is what every store command needs: configuration, telemetry and
// an engine. It is built once per command invocation.
type app struct {
	cfg      *config.Config
	defaults triplestore.Defaults
	tel      *telemetry.Telemetry
	engine   *stores.Engine
	log      *telemetry.Logger
	out      io.Writer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if metricsAddr != "" {
		cfg.Metrics.ListenAddress = metricsAddr
	}

	telCfg := cfg.TelemetryConfig(buildVersion)
	logger, err := newCommandLogger(cmd, telCfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}
	tel, err := telemetry.NewTelemetryWithLogger(telCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if verbose {
		tel.Events.Subscribe(telemetry.LogSubscriber(tel.Logger.NewComponentLogger("events")), nil)
	}

	if err := tel.StartMetricsServer(); err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	if addr := tel.Metrics.Addr(); addr != "" {
		tel.Logger.WithField("address", addr).Debug("serving metrics")
	}

	engineLog := tel.Logger.NewComponentLogger("stores").Zerolog()
	engine, err := stores.NewEngine(cfg.StoresConfig(&engineLog))
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create storage engine: %w", err)
	}

	return &app{
		cfg:      cfg,
		defaults: cfg.Defaults(),
		tel:      tel,
		engine:   engine,
		log:      tel.Logger.NewComponentLogger("cli"),
		out:      cmd.OutOrStdout(),
	}, nil
}

// newCommandLogger writes to the command's streams unless a log file is
// configured.
func newCommandLogger(cmd *cobra.Command, lc telemetry.LoggingConfig) (*telemetry.Logger, error) {
	switch lc.Output {
	case "", "stderr":
		return telemetry.NewLoggerWithWriter(cmd.ErrOrStderr(), lc), nil
	case "stdout":
		return telemetry.NewLoggerWithWriter(cmd.OutOrStdout(), lc), nil
	default:
		return telemetry.NewLogger(lc)
	}
}

// params resolves the store to open from the argument, the flags and the
// configured defaults, in that order.
func (a *app) params(name string) (triplestore.Params, error) {
	if name == "" {
		name = storeName
	}
	if name == "" {
		name = a.cfg.Store.Name
	}
	if name == "" {
		return triplestore.Params{}, fmt.Errorf("no store name: pass one as an argument, with --name or in the config file")
	}

	return a.defaults.Resolve(triplestore.Params{
		Name:             name,
		Backend:          backend,
		ConnectionString: connection,
	}), nil
}

// close flushes telemetry. Errors are reported, not returned, so they never
// mask the command's own result.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.log.WithError(err).Warn("telemetry shutdown failed")
	}
}

// withStore runs fn against an open handle inside an instrumented store
// operation. The handle is opened, or created, from the resolved params and
// closed when fn returns.
func withStore(cmd *cobra.Command, name, operation string, fn func(ctx context.Context, a *app, h *triplestore.Handle) error) (err error) {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.params(name)
	if err != nil {
		return err
	}

	ctx := a.tel.WithContext(cmd.Context())
	op := telemetry.StartStoreOperation(ctx, operation, p.Name, p.Backend)
	defer func() { op.End(err) }()

	h, err := triplestore.Create(op.Ctx, a.engine, p, a.tel.CreateOptions(p.Name)...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close store %s: %w", h.Name(), cerr))
		}
	}()

	op.HandleOpened(h)
	return fn(op.Ctx, a, h)
}

// printJSON writes v as indented JSON.
func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
