package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "farmhost_"

// Ingest outcome labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	alertsFired *prometheus.CounterVec

	subscribers    prometheus.Gauge
	subscriberDrop prometheus.Counter
)

// Init registers the process metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest submissions by outcome",
			},
			[]string{"outcome"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)

		alertsFired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_fired_total",
				Help: "Total alerts fired by code and severity",
			},
			[]string{"code", "severity"},
		)

		subscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "live_subscribers",
				Help: "Currently connected live-feed subscribers",
			},
		)
		subscriberDrop = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "subscriber_prunes_total",
				Help: "Subscribers pruned after failed delivery",
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestLatency,
			alertsFired,
			subscribers,
			subscriberDrop,
		)
	})
}

// ObserveIngest records one ingest submission and its duration.
func ObserveIngest(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(outcome).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// IncAlertFired increments the fired-alert counter.
func IncAlertFired(code, severity string) {
	if alertsFired != nil {
		alertsFired.WithLabelValues(code, severity).Inc()
	}
}

// SetSubscribers sets the live subscriber gauge.
func SetSubscribers(count int) {
	if subscribers != nil {
		subscribers.Set(float64(count))
	}
}

// IncSubscriberPruned counts a pruned subscriber.
func IncSubscriberPruned() {
	if subscriberDrop != nil {
		subscriberDrop.Inc()
	}
}
