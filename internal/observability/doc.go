// Package observability provides logging, metrics exposure and tracing
// for retryctl.
//
// # Logging
//
// The Logger interface wraps zap. Zap returns the underlying logger for
// the retry engine:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "debug"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	policy := retry.Default().WithLogger(logger.Zap())
//
// # Metrics
//
// MetricsServer serves a Prometheus registry, typically the one owned by
// retry.Metrics, on /metrics:
//
//	srv := observability.NewMetricsServer(":9090", metrics.Registry(), logger.Zap())
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop(context.Background())
//
// # Tracing
//
// NewTracer installs an OpenTelemetry tracer provider exporting over OTLP
// gRPC. Spans started from it carry the retry.Tracing events.
package observability
