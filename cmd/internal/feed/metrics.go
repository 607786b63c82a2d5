package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the feed collectors. A nil *Metrics records nothing.
type Metrics struct {
	sessions prometheus.Gauge
	dropped  prometheus.Counter
	rejected *prometheus.CounterVec
	inbound  *prometheus.CounterVec
}

// NewMetrics registers the feed collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomlog",
			Subsystem: "feed",
			Name:      "sessions",
			Help:      "Connected renderer sessions.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "roomlog",
			Subsystem: "feed",
			Name:      "dropped_updates_total",
			Help:      "Room updates dropped because a session queue was full.",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomlog",
			Subsystem: "feed",
			Name:      "rejected_total",
			Help:      "Handshakes rejected before upgrade, by reason.",
		}, []string{"reason"}),
		inbound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomlog",
			Subsystem: "feed",
			Name:      "inbound_total",
			Help:      "Envelopes received from renderers, by type.",
		}, []string{"type"}),
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) droppedUpdate() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) reject(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) received(typ string) {
	if m != nil {
		m.inbound.WithLabelValues(typ).Inc()
	}
}
