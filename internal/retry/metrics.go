package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMetricsNamespace is the namespace used when NewMetrics is given
// an empty one.
const DefaultMetricsNamespace = "avaretry"

// Metrics is an Observer that records Prometheus metrics in its own
// registry.
type Metrics struct {
	attemptsTotal         *prometheus.CounterVec
	invocationsTotal      *prometheus.CounterVec
	backoffSeconds        *prometheus.HistogramVec
	attemptsPerInvocation *prometheus.HistogramVec
	registry              *prometheus.Registry
}

var _ Observer[time.Duration] = (*Metrics)(nil)

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of failed attempts by recovery action",
		},
		[]string{"operation", "action"},
	)

	m.invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "invocations_total",
			Help:      "Total number of retried invocations by result",
		},
		[]string{"operation", "result"},
	)

	m.backoffSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "backoff_seconds",
			Help:      "Suspension before the next attempt in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 60},
		},
		[]string{"operation"},
	)

	m.attemptsPerInvocation = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_per_invocation",
			Help:      "Number of operation calls per invocation",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
		},
		[]string{"operation"},
	)

	m.registry.MustRegister(
		m.attemptsTotal,
		m.invocationsTotal,
		m.backoffSeconds,
		m.attemptsPerInvocation,
	)

	return m
}

// Init pre-initializes the label combinations of operation so that its
// series appear in /metrics output before the first failure.
func (m *Metrics) Init(operation string) {
	for _, action := range []Action{ActionRetry, ActionRetryAfter, ActionGiveUp} {
		m.attemptsTotal.WithLabelValues(operation, action.String())
	}
	for _, result := range []Result{ResultSuccess, ResultGaveUp, ResultExhausted, ResultCancelled} {
		m.invocationsTotal.WithLabelValues(operation, string(result))
	}
}

// AttemptFailed implements Observer.
func (m *Metrics) AttemptFailed(_ context.Context, event AttemptEvent[time.Duration]) {
	m.attemptsTotal.WithLabelValues(event.Operation, event.Action.String()).Inc()
	if event.Action != ActionGiveUp {
		m.backoffSeconds.WithLabelValues(event.Operation).Observe(event.Delay.Seconds())
	}
}

// Finished implements Observer.
func (m *Metrics) Finished(_ context.Context, event FinishEvent) {
	m.invocationsTotal.WithLabelValues(event.Operation, string(event.Result)).Inc()
	m.attemptsPerInvocation.WithLabelValues(event.Operation).Observe(float64(event.Attempts))
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
// AlreadyRegisteredError is silently ignored so a reloaded policy can
// register the same Metrics again.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		m.attemptsTotal,
		m.invocationsTotal,
		m.backoffSeconds,
		m.attemptsPerInvocation,
	} {
		if err := registry.Register(c); err != nil {
			if !isAlreadyRegistered(err) {
				panic(err)
			}
		}
	}
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// isAlreadyRegistered returns true if the error indicates the
// collector was already registered with the registry.
func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}

