package lockstep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CurrentTick     prometheus.Gauge
	TicksAdvanced   prometheus.Counter
	StarvedUpdates  prometheus.Counter
	StaleBundles    prometheus.Counter
	BufferedBundles prometheus.Gauge
}

// NewMetrics registers the lockstep collectors with reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CurrentTick: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmcore", Subsystem: "lockstep", Name: "current_tick",
			Help: "Next tick the local simulation will execute.",
		}),
		TicksAdvanced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcore", Subsystem: "lockstep", Name: "ticks_advanced_total",
			Help: "Ticks executed against the simulation.",
		}),
		StarvedUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcore", Subsystem: "lockstep", Name: "starved_updates_total",
			Help: "Updates that found no confirmed bundle for the current tick.",
		}),
		StaleBundles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcore", Subsystem: "lockstep", Name: "stale_bundles_total",
			Help: "Bundles dropped because their tick had already executed.",
		}),
		BufferedBundles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmcore", Subsystem: "lockstep", Name: "buffered_bundles",
			Help: "Confirmed bundles waiting for their tick.",
		}),
	}
}
