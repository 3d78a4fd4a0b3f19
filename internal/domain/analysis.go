package domain

import "time"

// AnalysisResult is the normalized output of one video analysis.
type AnalysisResult struct {
	ExerciseName string   `json:"exerciseName"`
	RepCount     int      `json:"repCount"`
	Feedback     []string `json:"feedback"`
	FormScore    float64  `json:"formScore"`
	// AnalysisQuality is reported by some engine builds ("high", "medium").
	AnalysisQuality string `json:"analysisQuality,omitempty"`
}

// Clone returns a deep copy so callers never share the feedback slice.
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	if r.Feedback != nil {
		out.Feedback = append(make([]string, 0, len(r.Feedback)), r.Feedback...)
	}
	return out
}

// Outcome records how the engine adapter arrived at a result.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeProcessFailed   Outcome = "process_failed"
	OutcomeMalformedOutput Outcome = "malformed_output"
	OutcomeTimeout         Outcome = "timeout"
)

// Fallback reports whether the result was substituted by the fallback policy.
func (o Outcome) Fallback() bool {
	return o != OutcomeOK
}

// WorkoutAnalysisRecord is the persisted form of a completed analysis job.
type WorkoutAnalysisRecord struct {
	ID           string
	VideoPath    string
	OriginalName string
	AnalysisResult
	Outcome   Outcome
	UserID    *string
	CreatedAt time.Time
}

// ChatTurn is a single user message with optional analysis context.
type ChatTurn struct {
	Message         string
	AnalysisContext *AnalysisResult
}
