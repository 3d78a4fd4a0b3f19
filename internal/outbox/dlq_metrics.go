package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "dlq",
		Name:      "analysis_events_requeued_total",
		Help:      "Failed analysis events moved back into the outbox for another publish attempt.",
	}, []string{"topic", "event_type"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "dlq",
		Name:      "analysis_events_quarantined_total",
		Help:      "Analysis events parked for operator review after the retry limit.",
	}, []string{"topic", "event_type"})

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "dlq",
		Name:      "analysis_event_retries_scheduled_total",
		Help:      "Backoff retries scheduled for failed analysis events.",
	}, []string{"topic", "event_type"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "formcoach",
		Subsystem: "dlq",
		Name:      "pending_analysis_events",
		Help:      "Analysis events waiting in the DLQ, excluding quarantined ones.",
	}, []string{"topic"})

	dlqOldestGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "formcoach",
		Subsystem: "dlq",
		Name:      "oldest_pending_age_seconds",
		Help:      "Age of the oldest pending DLQ entry per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(dlqRequeuedCounter, dlqQuarantinedCounter, dlqRetryCounter, dlqBacklogGauge, dlqOldestGauge)
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

// updateBacklogGauge replaces the per-topic backlog series; topics with no pending entries disappear.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
        SELECT topic, COUNT(*), EXTRACT(EPOCH FROM NOW() - MIN(created_at))::float8
        FROM outbox_dlq
        WHERE quarantined_at IS NULL
        GROUP BY topic`)
	if err != nil {
		return
	}
	defer rows.Close()

	type backlog struct {
		topic string
		count int64
		age   float64
	}
	var current []backlog
	for rows.Next() {
		var b backlog
		if err := rows.Scan(&b.topic, &b.count, &b.age); err != nil {
			return
		}
		current = append(current, b)
	}
	if rows.Err() != nil {
		return
	}

	dlqBacklogGauge.Reset()
	dlqOldestGauge.Reset()
	for _, b := range current {
		dlqBacklogGauge.WithLabelValues(b.topic).Set(float64(b.count))
		dlqOldestGauge.WithLabelValues(b.topic).Set(b.age)
	}
}
