// Package retry runs fallible operations with bounded, classified retries.
//
// An invocation calls the operation, classifies each failure and either
// gives up, retries after the next backoff delay, or retries no earlier
// than an instant requested by the failure (for example a Retry-After
// header). The engine never returns a synthetic error: the caller sees
// the operation's result, or the latest failure with retry markers
// stripped, or the cancellation error.
//
// # Classification
//
// Failures are classified in a fixed order:
//
//   - cancellation of the calling context always gives up;
//   - an error wrapped with Retryable is retried, one wrapped with
//     NotRetryable is not (the outermost marker wins);
//   - everything else is handed to the configured Classifier.
//
// # Usage
//
//	cfg := retry.Default().
//	    WithMaxAttempts(5).
//	    WithShouldRetry(isTransient).
//	    WithLogger(logger)
//
//	body, err := retry.DoValue(ctx, cfg, func(ctx context.Context) ([]byte, error) {
//	    return fetch(ctx)
//	})
//
// Config values are immutable and safe to share between goroutines. Time
// is abstracted through clock.Clock, so tests can drive the engine with
// clock.Fake and inspect every requested sleep.
//
// # Observability
//
// Failed attempts are logged at debug level. Metrics and Tracing are
// Observers that export Prometheus metrics and OpenTelemetry span events.
package retry
