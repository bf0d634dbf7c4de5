package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStates = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// ResilienceMetrics exports executor retries and breaker states. It implements
// resilience.Observer.
type ResilienceMetrics struct {
	service      string
	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewResilienceMetrics(registerer prometheus.Registerer, service string) *ResilienceMetrics {
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civic",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retries performed by the resilience executor.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "civic",
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	registerer.MustRegister(retriesTotal, breakerState)

	return &ResilienceMetrics{
		service:      service,
		retriesTotal: retriesTotal,
		breakerState: breakerState,
	}
}

func (m *ResilienceMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *ResilienceMetrics) ObserveBreakerState(operation string, state string) {
	value, ok := breakerStates[state]
	if !ok {
		return
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
