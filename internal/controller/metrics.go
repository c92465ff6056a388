package controller

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lb"

type Metrics struct {
	Decisions *prometheus.CounterVec
	Learned   prometheus.Gauge
	Rejected  *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them on reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Forwarding decisions taken, by kind.",
		}, []string{"decision"}),
		Learned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "learned_stations",
			Help:      "Hardware addresses currently held in the learning table.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejected_events_total",
			Help:      "Packet-in events dropped before a decision, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Decisions, m.Learned, m.Rejected)
	}
	return m
}
