package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"example.com/formcoach/internal/domain"
)

// wireResult mirrors the engine's stdout object. Pointers distinguish absent keys.
type wireResult struct {
	ExerciseName    *string    `json:"exerciseName"`
	RepCount        *float64   `json:"repCount"`
	Feedback        *[]*string `json:"feedback"`
	FormScore       *float64   `json:"formScore"`
	AnalysisQuality string     `json:"analysisQuality"`
}

// ParseResult decodes exactly one engine result object from raw stdout.
// Unknown keys are ignored; missing keys, wrong types, trailing data, an empty
// exercise name, a null feedback item or a negative or fractional rep count
// are errors.
func ParseResult(data []byte) (domain.AnalysisResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var wire wireResult
	if err := dec.Decode(&wire); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode engine output: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.AnalysisResult{}, errors.New("engine output contains trailing data")
	}

	switch {
	case wire.ExerciseName == nil:
		return domain.AnalysisResult{}, errors.New("engine output missing exerciseName")
	case wire.RepCount == nil:
		return domain.AnalysisResult{}, errors.New("engine output missing repCount")
	case wire.Feedback == nil:
		return domain.AnalysisResult{}, errors.New("engine output missing feedback")
	case wire.FormScore == nil:
		return domain.AnalysisResult{}, errors.New("engine output missing formScore")
	}

	if strings.TrimSpace(*wire.ExerciseName) == "" {
		return domain.AnalysisResult{}, errors.New("engine output has empty exerciseName")
	}

	reps := *wire.RepCount
	if reps < 0 || reps != math.Trunc(reps) || reps > math.MaxInt32 {
		return domain.AnalysisResult{}, fmt.Errorf("engine output has invalid repCount %v", reps)
	}

	feedback := make([]string, 0, len(*wire.Feedback))
	for i, tip := range *wire.Feedback {
		if tip == nil {
			return domain.AnalysisResult{}, fmt.Errorf("engine output has null feedback item %d", i)
		}
		feedback = append(feedback, *tip)
	}

	return domain.AnalysisResult{
		ExerciseName:    *wire.ExerciseName,
		RepCount:        int(reps),
		Feedback:        feedback,
		FormScore:       *wire.FormScore,
		AnalysisQuality: wire.AnalysisQuality,
	}, nil
}
