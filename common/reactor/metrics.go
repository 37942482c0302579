package reactor

import "github.com/prometheus/client_golang/prometheus"

// Metrics are optional reactor instruments. A nil *Metrics records nothing.
type Metrics struct {
	Dispatched      *prometheus.CounterVec
	Registered      prometheus.Gauge
	InterestUpdates prometheus.Counter
	TimersFired     prometheus.Counter
	IdleRuns        prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "dispatched_events_total",
			Help:      "Readiness events dispatched to handlers.",
		}, []string{"event"}),
		Registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactor",
			Name:      "registered_handlers",
			Help:      "Handlers currently registered, daemons included.",
		}),
		InterestUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "interest_updates_total",
			Help:      "Interest flag changes pushed to the backend.",
		}),
		TimersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "timers_fired_total",
			Help:      "Timer tasks fired.",
		}),
		IdleRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "idle_runs_total",
			Help:      "Idle handler invocations.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(
			metrics.Dispatched,
			metrics.Registered,
			metrics.InterestUpdates,
			metrics.TimersFired,
			metrics.IdleRuns,
		)
	}
	return metrics
}

func (m *Metrics) dispatched(event string) {
	if m != nil {
		m.Dispatched.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) registered(delta float64) {
	if m != nil {
		m.Registered.Add(delta)
	}
}

func (m *Metrics) interestUpdated() {
	if m != nil {
		m.InterestUpdates.Inc()
	}
}

func (m *Metrics) timersFired(n int) {
	if m != nil && n > 0 {
		m.TimersFired.Add(float64(n))
	}
}

func (m *Metrics) idleRun() {
	if m != nil {
		m.IdleRuns.Inc()
	}
}
