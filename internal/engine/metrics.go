package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics surfaces the engine's outcome counters. All methods are nil-safe so
// the engine can run without metrics wired.
type Metrics struct {
	registrations       *prometheus.CounterVec
	promotions          prometheus.Counter
	promotionSkips      prometheus.Counter
	contentionRetries   prometheus.Counter
	contentionExhausted prometheus.Counter
}

// NewMetrics registers the engine counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_attempts_total",
			Help: "Registration attempts by outcome.",
		}, []string{"outcome"}),
		promotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_promotions_total",
			Help: "Waitlisted users promoted to confirmed.",
		}),
		promotionSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_promotion_skips_total",
			Help: "Promotions skipped because the head's registration vanished.",
		}),
		contentionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_contention_retries_total",
			Help: "Optimistic retries after a conditional commit lost a race.",
		}),
		contentionExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_contention_exhausted_total",
			Help: "Operations that gave up after the retry budget.",
		}),
	}
}

func (m *Metrics) registration(outcome string) {
	if m != nil {
		m.registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) promotion() {
	if m != nil {
		m.promotions.Inc()
	}
}

func (m *Metrics) promotionSkip() {
	if m != nil {
		m.promotionSkips.Inc()
	}
}

func (m *Metrics) contentionRetry() {
	if m != nil {
		m.contentionRetries.Inc()
	}
}

func (m *Metrics) contentionExhaust() {
	if m != nil {
		m.contentionExhausted.Inc()
	}
}
