package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the engine does. Registration is optional: pass a nil
// registerer (tests, CLI without a metrics listener) and the counters still
// work, they just are not exported.
type Metrics struct {
	PollTicks      *prometheus.CounterVec
	Generations    *prometheus.CounterVec
	CacheFallbacks prometheus.Counter
	ActivePolls    prometheus.Gauge
}

// NewMetrics creates the engine metric set and registers it when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "story_client",
			Name:      "poll_ticks_total",
			Help:      "Poll ticks by outcome (pending, completed, failed, error).",
		}, []string{"outcome"}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "story_client",
			Name:      "generations_total",
			Help:      "Finished generation requests by result (completed, failed, timeout, error).",
		}, []string{"result"}),
		CacheFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "story_client",
			Name:      "list_cache_fallbacks_total",
			Help:      "Times the story list was served from the local cache after a refresh failure.",
		}),
		ActivePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "story_client",
			Name:      "active_poll_loops",
			Help:      "Poll loops currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PollTicks, m.Generations, m.CacheFallbacks, m.ActivePolls)
	}
	return m
}
