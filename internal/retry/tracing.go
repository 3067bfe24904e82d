package retry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaretry/internal/clock"
)

// Span event and attribute names.
const (
	EventAttemptFailed = "retry.attempt_failed"

	AttrOperation  = attribute.Key("retry.operation")
	AttrAttempt    = attribute.Key("retry.attempt")
	AttrAction     = attribute.Key("retry.action")
	AttrDelay      = attribute.Key("retry.delay")
	AttrRetryAfter = attribute.Key("retry.retry_after")
	AttrAttempts   = attribute.Key("retry.attempts")
	AttrResult     = attribute.Key("retry.result")
	AttrErrorType  = attribute.Key("error.type")
)

// Tracing is an Observer that annotates the span carried by the context.
// It never starts spans of its own; without a recording span it does
// nothing.
type Tracing[D clock.Duration] struct{}

// NewTracing returns a tracing observer.
func NewTracing[D clock.Duration]() Tracing[D] {
	return Tracing[D]{}
}

// AttemptFailed adds a retry.attempt_failed event to the current span.
func (Tracing[D]) AttemptFailed(ctx context.Context, event AttemptEvent[D]) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		AttrAttempt.Int(event.Attempt),
		AttrAction.String(event.Action.String()),
		AttrErrorType.String(fmt.Sprintf("%T", event.Err)),
	}
	if event.Operation != "" {
		attrs = append(attrs, AttrOperation.String(event.Operation))
	}
	if event.Action != ActionGiveUp {
		attrs = append(attrs, AttrDelay.String(formatDuration(event.Delay)))
	}
	if event.RetryAfter > 0 {
		attrs = append(attrs, AttrRetryAfter.String(formatDuration(event.RetryAfter)))
	}

	span.AddEvent(EventAttemptFailed, trace.WithAttributes(attrs...))
	if event.Err != nil {
		span.RecordError(event.Err)
	}
}

// Finished records the outcome on the current span and marks it as an
// error when the invocation failed.
func (Tracing[D]) Finished(ctx context.Context, event FinishEvent) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(
		AttrAttempts.Int(event.Attempts),
		AttrResult.String(string(event.Result)),
	)
	if event.Err != nil {
		span.SetStatus(codes.Error, event.Err.Error())
	}
}

func formatDuration[D clock.Duration](d D) string {
	if s, ok := any(d).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%d", int64(d))
}
