package agent

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeEmitted    = "emitted"
	outcomeSuppressed = "suppressed"
	outcomeUnresolved = "unresolved"
	outcomeDisabled   = "disabled"
	outcomeFailed     = "failed"
)

var (
	cyclesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attribution_agent",
		Name:      "cycles_total",
		Help:      "Resolution cycles labeled by outcome.",
	}, []string{"outcome"})
	audioStopCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attribution_agent",
		Name:      "audio_stop_total",
		Help:      "Delivered background-audio stop markers.",
	})
	commandsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attribution_agent",
		Name:      "commands_total",
		Help:      "External commands received, labeled by command.",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(cyclesCounter, audioStopCounter, commandsCounter)
}

func recordCycle(outcome string) {
	cyclesCounter.WithLabelValues(outcome).Inc()
}
