package delivery

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attribution_agent",
		Subsystem: "delivery",
		Name:      "events_delivered_total",
		Help:      "Number of events accepted by the ingestion endpoint, labeled by event kind.",
	}, []string{"kind"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attribution_agent",
		Subsystem: "delivery",
		Name:      "failures_total",
		Help:      "Number of failed delivery attempts, labeled by error tag.",
	}, []string{"reason"})

	attemptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attribution_agent",
		Subsystem: "delivery",
		Name:      "attempt_duration_seconds",
		Help:      "Time spent on a single delivery attempt, including timeouts.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 11),
	})

	consecutiveErrorsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "attribution_agent",
		Subsystem: "delivery",
		Name:      "consecutive_errors",
		Help:      "Delivery failures since the last success.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, attemptDuration, consecutiveErrorsGauge)
}
