// Package events defines the payloads published when analyses complete.
package events

import "time"

const (
	// AnalysisCompletedType is the outbox event_type for a persisted analysis.
	AnalysisCompletedType = "analysis.completed"
	// AnalysisTopic receives every analysis event.
	AnalysisTopic = "workout_analysis_events"
	// AnalysisSubject is the Schema Registry subject for AnalysisTopic values.
	AnalysisSubject = AnalysisTopic + "-value"
)

// AnalysisCompleted is emitted once per persisted analysis job.
type AnalysisCompleted struct {
	AnalysisID   string    `json:"analysis_id"`
	ExerciseName string    `json:"exercise_name"`
	RepCount     int       `json:"rep_count"`
	FormScore    float64   `json:"form_score"`
	Outcome      string    `json:"outcome"`
	Fallback     bool      `json:"fallback"`
	CreatedAt    time.Time `json:"created_at"`
}
