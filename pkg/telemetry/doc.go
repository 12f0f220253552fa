// Package telemetry provides observability for tstore handles.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and handle lifecycle events.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//	cfg.Metrics.ListenAddress = ":9464"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(); err != nil {
//	    return err
//	}
//
//	h, err := triplestore.Create(ctx, engine, params, tel.CreateOptions(params.Name)...)
//
// CreateOptions wires the handle manager's logger, tracer and recorder to
// this package.
//
// # Metrics
//
// With the default "tstore" namespace:
//
//   - tstore_open_attempts_total{backend,mode,result}
//   - tstore_handles_created_total{backend,path}
//   - tstore_create_failures_total{backend,kind}
//   - tstore_create_duration_seconds{backend}
//   - tstore_handles_open{backend}
//
// path and mode are "open" or "create"; kind is one of session_init,
// options_parse or storage_open.
//
// # Events
//
// Subscribers receive handle.opened, store.created, handle.open_fallback,
// handle.create_failed and handle.released events. Delivery is inline
// unless EventsConfig.EnableAsync is set. LogSubscriber turns events into
// debug log lines.
//
// # Tracing
//
// Exporters: otlp (gRPC), stdout, none. Tracing is disabled by default,
// in which case spans are created and dropped. StartStoreOperation opens a
// store span with a matching store-scoped logger.
package telemetry
