package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/gauges for the call session engine.
type CallMetrics struct {
	activeSessions  prometheus.Gauge
	callsTotal      *prometheus.CounterVec
	turnsTotal      *prometheus.CounterVec
	handoffsTotal   *prometheus.CounterVec
	trialRejections prometheus.Counter
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "frontdesk",
			Subsystem: "calls",
			Name:      "active_sessions",
			Help:      "Number of call sessions currently in the registry",
		}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "calls",
			Name:      "total",
			Help:      "Total calls by final outcome",
		}, []string{"outcome"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "calls",
			Name:      "turns_total",
			Help:      "Total processed caller turns",
		}, []string{"result"}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "calls",
			Name:      "handoffs_total",
			Help:      "Total completed language hand-offs",
		}, []string{"to"}),
		trialRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "trial",
			Name:      "rejections_total",
			Help:      "Total calls denied because the trial was already used",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.activeSessions, m.callsTotal, m.turnsTotal, m.handoffsTotal, m.trialRejections)
	return m
}

func (m *CallMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionEnded records a call's final outcome: "completed", "expired",
// "abandoned" or "evicted".
func (m *CallMetrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.callsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTurn records one processed caller turn: "ok", "handoff", "timeout",
// "error" or "empty".
func (m *CallMetrics) ObserveTurn(result string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(result).Inc()
}

func (m *CallMetrics) ObserveHandoff(to string) {
	if m == nil {
		return
	}
	m.handoffsTotal.WithLabelValues(to).Inc()
}

func (m *CallMetrics) TrialRejected() {
	if m == nil {
		return
	}
	m.trialRejections.Inc()
}
