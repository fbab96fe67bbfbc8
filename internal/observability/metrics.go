package observability

import (
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "presence"

// Metrics holds the engine's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Ticks           *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Pruned          prometheus.Counter
	TrackedEntities prometheus.Gauge
	OpenSessions    prometheus.Gauge
	Reports         *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	TickDuration    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "ticks_total",
			Help:      "Observation ticks by result.",
		}, []string{"result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "transitions_total",
			Help:      "Presence state machine transitions.",
		}, []string{"transition"}),
		Pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "pruned_records_total",
			Help:      "Presence records deleted because their entity could not be resolved.",
		}),
		TrackedEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "records",
			Help:      "Presence records held by the session store.",
		}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "open_sessions",
			Help:      "Sessions currently open.",
		}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "reports_total",
			Help:      "Weekly report wake-ups by result.",
		}, []string{"result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "payloads_total",
			Help:      "Delivered payloads by kind and result.",
		}, []string{"kind", "result"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one observation tick.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Ticks,
			m.Transitions,
			m.Pruned,
			m.TrackedEntities,
			m.OpenSessions,
			m.Reports,
			m.Deliveries,
			m.TickDuration,
		)
	}

	return m
}

func (m *Metrics) ObserveTick(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(result).Inc()
	m.TickDuration.Observe(seconds)
}

func (m *Metrics) ObserveTransition(transition domain.Transition) {
	if m == nil || transition == domain.TransitionNone {
		return
	}
	m.Transitions.WithLabelValues(string(transition)).Inc()
}

func (m *Metrics) ObservePrune() {
	if m == nil {
		return
	}
	m.Pruned.Inc()
}

func (m *Metrics) SetStoreSize(records, open int) {
	if m == nil {
		return
	}
	m.TrackedEntities.Set(float64(records))
	m.OpenSessions.Set(float64(open))
}

func (m *Metrics) ObserveReport(result string) {
	if m == nil {
		return
	}
	m.Reports.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDelivery(kind domain.PayloadKind, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Deliveries.WithLabelValues(string(kind), result).Inc()
}
