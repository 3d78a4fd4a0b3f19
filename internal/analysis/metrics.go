package analysis

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/formcoach/internal/domain"
)

var (
	jobsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "analysis",
		Name:      "jobs_total",
		Help:      "Analysis engine runs grouped by outcome.",
	}, []string{"outcome"})

	jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "formcoach",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Wall time of analysis engine runs, including slot waits.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	inflightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "formcoach",
		Subsystem: "analysis",
		Name:      "inflight",
		Help:      "Analysis engine processes currently running.",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "formcoach",
		Subsystem: "analysis",
		Name:      "queued",
		Help:      "Analysis jobs waiting for a free engine slot.",
	})

	engineReportedErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "analysis",
		Name:      "engine_reported_errors_total",
		Help:      "Well-formed engine results whose exercise name reports an internal engine error.",
	})
)

func init() {
	prometheus.MustRegister(jobsCounter, jobDuration, inflightGauge, queueDepth, engineReportedErrors)
}

func recordJob(outcome domain.Outcome, elapsed time.Duration) {
	jobsCounter.WithLabelValues(string(outcome)).Inc()
	jobDuration.Observe(elapsed.Seconds())
}
