package keeper

import "github.com/prometheus/client_golang/prometheus"

var wakeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "attribution_agent",
	Subsystem: "keeper",
	Name:      "wake_signals_total",
	Help:      "Wake signals offered to the worker, labeled by whether they were sent or dropped.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(wakeCounter)
}
