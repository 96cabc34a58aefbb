// Package observability registers the Prometheus collectors shared by the service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stepcause",
		Subsystem: "integrity",
		Name:      "batches_accepted_total",
		Help:      "Activity batches that passed the integrity checks.",
	})
	batchesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepcause",
		Subsystem: "integrity",
		Name:      "batches_rejected_total",
		Help:      "Activity batches rejected by the integrity checks, labeled by reason.",
	}, []string{"reason"})
	stepsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stepcause",
		Subsystem: "attribution",
		Name:      "steps_recorded_total",
		Help:      "Steps added to user totals.",
	})
	stepsCredited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stepcause",
		Subsystem: "attribution",
		Name:      "steps_credited_total",
		Help:      "Steps credited to causes across all supported intervals.",
	})
	attributionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stepcause",
		Subsystem: "attribution",
		Name:      "last_attribution_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent attribution written to the store.",
	})
	similarityOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepcause",
		Subsystem: "similarity",
		Name:      "checks_total",
		Help:      "Duplicate-cause checks, labeled by outcome.",
	}, []string{"outcome"})
	similarityLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stepcause",
		Subsystem: "similarity",
		Name:      "classifier_duration_seconds",
		Help:      "Time spent waiting on the external classifier.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(
		batchesAccepted,
		batchesRejected,
		stepsRecorded,
		stepsCredited,
		attributionPersistGauge,
		similarityOutcomes,
		similarityLatency,
	)
}

// RecordBatchAccepted counts a batch that passed validation.
func RecordBatchAccepted() {
	batchesAccepted.Inc()
}

// RecordBatchRejected counts a rejected batch.
func RecordBatchRejected(reason string) {
	batchesRejected.WithLabelValues(reason).Inc()
}

// RecordAttribution updates the step counters and the persistence watermark.
func RecordAttribution(recorded, credited int64, ts time.Time) {
	stepsRecorded.Add(float64(recorded))
	stepsCredited.Add(float64(credited))
	if ts.IsZero() {
		return
	}
	attributionPersistGauge.Set(float64(ts.Unix()))
}

// RecordSimilarityOutcome counts a duplicate check by outcome.
func RecordSimilarityOutcome(outcome string) {
	similarityOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveClassifierLatency records how long the classifier call took.
func ObserveClassifierLatency(d time.Duration) {
	similarityLatency.Observe(d.Seconds())
}
