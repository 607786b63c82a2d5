package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	eventsMetricName     = "roomlog_session_events_total"
	reloadsMetricName    = "roomlog_session_window_reloads_total"
	olderPagesMetricName = "roomlog_session_older_pages_total"
	openRoomsMetricName  = "roomlog_session_open_rooms"
)

// Metrics are the session counters. A nil *Metrics records nothing.
type Metrics struct {
	events     *prometheus.CounterVec
	reloads    prometheus.Counter
	olderPages prometheus.Counter
	openRooms  prometheus.Gauge
}

// NewMetrics creates the session metrics and registers them with reg (nil: not registered).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: eventsMetricName,
			Help: "Room events applied, by kind.",
		}, []string{"kind"}),
		reloads: f.NewCounter(prometheus.CounterOpts{
			Name: reloadsMetricName,
			Help: "Display window hide point recomputations.",
		}),
		olderPages: f.NewCounter(prometheus.CounterOpts{
			Name: olderPagesMetricName,
			Help: "Older history pages served to renderers.",
		}),
		openRooms: f.NewGauge(prometheus.GaugeOpts{
			Name: openRoomsMetricName,
			Help: "Rooms currently held in memory.",
		}),
	}
}

// Event counts one applied event.
func (m *Metrics) Event(kind EventKind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind.String()).Inc()
}

// Reload counts one hide point recomputation.
func (m *Metrics) Reload() {
	if m == nil {
		return
	}
	m.reloads.Inc()
}

// OlderPage counts one served page of older history.
func (m *Metrics) OlderPage() {
	if m == nil {
		return
	}
	m.olderPages.Inc()
}

// OpenRooms records how many rooms are held.
func (m *Metrics) OpenRooms(n int) {
	if m == nil {
		return
	}
	m.openRooms.Set(float64(n))
}
