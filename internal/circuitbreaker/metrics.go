package circuitbreaker

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Metrics holds Prometheus metrics for circuit breakers.
type Metrics struct {
	state        *prometheus.GaugeVec
	requests     *prometheus.CounterVec
	stateChanges *prometheus.CounterVec
}

// NewMetrics creates circuit breaker metrics. Register them with
// MustRegister.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "requests_total",
				Help:      "Total number of calls through the circuit breaker by result",
			},
			[]string{"name", "result"},
		),
		stateChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state_changes_total",
				Help:      "Total number of circuit breaker state changes",
			},
			[]string{"name", "from", "to"},
		),
	}
}

// MustRegister registers the metrics with registry. Metrics already
// registered are left alone.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{m.state, m.requests, m.stateChanges} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func (m *Metrics) init(name string) {
	m.state.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
}

func (m *Metrics) request(name string, err error) {
	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case err != nil:
		result = "failure"
	}
	m.requests.WithLabelValues(name, result).Inc()
}

func (m *Metrics) stateChanged(name string, from, to gobreaker.State) {
	m.stateChanges.WithLabelValues(name, from.String(), to.String()).Inc()
	m.state.WithLabelValues(name).Set(float64(to))
}
