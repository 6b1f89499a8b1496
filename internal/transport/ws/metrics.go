package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	clients       prometheus.Gauge
	ticksFlushed  prometheus.Counter
	inputs        prometheus.Counter
	lateInputs    prometheus.Counter
	slowConsumers prometheus.Counter
	rejected      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmcore", Subsystem: "relay", Name: "clients",
			Help: "Connected lockstep clients.",
		}),
		ticksFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcore", Subsystem: "relay", Name: "ticks_flushed_total",
			Help: "Bundles broadcast.",
		}),
		inputs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcore", Subsystem: "relay", Name: "inputs_total",
			Help: "INPUT messages accepted.",
		}),
		lateInputs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcore", Subsystem: "relay", Name: "late_inputs_total",
			Help: "INPUT messages moved to a later tick because theirs had already flushed.",
		}),
		slowConsumers: f.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcore", Subsystem: "relay", Name: "slow_consumers_total",
			Help: "Clients disconnected for not keeping up with broadcasts.",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarmcore", Subsystem: "relay", Name: "rejected_messages_total",
			Help: "Client messages rejected, by error code.",
		}, []string{"code"}),
	}
}
