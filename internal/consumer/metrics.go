package consumer

import (
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/formcoach/internal/events"
)

var (
	auditedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "audit",
		Name:      "events_recorded_total",
		Help:      "Analysis events written to the audit log, by event type and analysis outcome.",
	}, []string{"event_type", "outcome"})

	auditFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Analysis events the audit handler failed to record; the message is retried.",
	}, []string{"event_type"})

	undecodableCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "audit",
		Name:      "undecodable_messages_total",
		Help:      "Messages skipped because their framing or headers were invalid.",
	}, []string{"topic"})

	auditLagHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "formcoach",
		Subsystem: "audit",
		Name:      "lag_seconds",
		Help:      "Time from analysis created_at to its audit log entry.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
	})
)

func init() {
	prometheus.MustRegister(auditedCounter, auditFailureCounter, undecodableCounter, auditLagHistogram)
}

// analysisOutcome reads the outcome label from an analysis.completed payload.
func analysisOutcome(msg Message) (string, time.Time) {
	if msg.EventType != events.AnalysisCompletedType {
		return "n/a", time.Time{}
	}
	var event events.AnalysisCompleted
	if err := json.Unmarshal(msg.Payload, &event); err != nil || event.Outcome == "" {
		return "unknown", event.CreatedAt
	}
	return event.Outcome, event.CreatedAt
}

func recordProcessed(msg Message) {
	outcome, createdAt := analysisOutcome(msg)
	auditedCounter.WithLabelValues(msg.EventType, outcome).Inc()
	if !createdAt.IsZero() {
		auditLagHistogram.Observe(time.Since(createdAt).Seconds())
	}
}

func recordHandlerError(msg Message) {
	auditFailureCounter.WithLabelValues(msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	undecodableCounter.WithLabelValues(topic).Inc()
}
