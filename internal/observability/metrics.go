package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	lastAttemptGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "attribution_agent",
		Subsystem: "delivery",
		Name:      "last_attempt_timestamp_seconds",
		Help:      "Unix timestamp of the most recent delivery attempt.",
	})
	lastSuccessGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "attribution_agent",
		Subsystem: "delivery",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful delivery.",
	})
)

func init() {
	prometheus.MustRegister(lastAttemptGauge, lastSuccessGauge)
}

// RecordAttempt updates the attempt watermark gauge.
func RecordAttempt(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastAttemptGauge.Set(float64(ts.Unix()))
}

// RecordSuccess updates the success watermark gauge.
func RecordSuccess(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSuccessGauge.Set(float64(ts.Unix()))
}
