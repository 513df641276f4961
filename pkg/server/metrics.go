package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sqrl"

// Metrics instruments NutEngine and LinkBuilder. It is an ambient
// observability concern, not a named feature: every method is nil-safe, so
// an embedder that never constructs one pays no cost and sees no panics.
type Metrics struct {
	NutsIssued   prometheus.Counter
	NutsVerified *prometheus.CounterVec
}

// NewMetrics registers sqrl_nuts_issued_total and sqrl_nuts_verified_total
// (labeled by result: ok|mac_mismatch|expired) against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NutsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nuts_issued_total",
			Help:      "Total nuts issued by the server's NutEngine.",
		}),
		NutsVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nuts_verified_total",
			Help:      "Total nut verification attempts, labeled by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) nutIssued() {
	if m == nil {
		return
	}
	m.NutsIssued.Inc()
}

func (m *Metrics) nutVerified(result string) {
	if m == nil {
		return
	}
	m.NutsVerified.WithLabelValues(result).Inc()
}

func (m *Metrics) macVerified(result string) {
	if m == nil {
		return
	}
	m.NutsVerified.WithLabelValues(result).Inc()
}
