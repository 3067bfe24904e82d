package health

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for health checks.
type Metrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

// NewMetrics creates health check metrics. Register them with
// MustRegister.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of health checks performed by result",
			},
			[]string{"check", "status"},
		),
		checkStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Latest health check status (1=healthy, 0=unhealthy)",
			},
			[]string{"check"},
		),
	}
}

// MustRegister registers the metrics with registry. Metrics already
// registered are left alone.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{m.checksTotal, m.checkStatus} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func (m *Metrics) record(check string, healthy bool) {
	status, value := StatusOK, 1.0
	if !healthy {
		status, value = StatusError, 0
	}
	m.checksTotal.WithLabelValues(check, string(status)).Inc()
	m.checkStatus.WithLabelValues(check).Set(value)
}
