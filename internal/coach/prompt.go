// Package coach composes chat prompts and talks to text-generation providers.
package coach

import (
	"fmt"
	"strconv"
	"strings"

	"example.com/formcoach/internal/domain"
)

// Persona opens every prompt.
const Persona = "You are FormCoach, an encouraging and knowledgeable fitness coach. " +
	"Give practical, safe advice about exercise technique and training, keep answers concise, " +
	"and motivate the user to keep improving."

// ComposePrompt merges the persona, the optional analysis context and the user's
// message into a single completion prompt. It is deterministic and has no side effects.
func ComposePrompt(message string, analysis *domain.AnalysisResult) string {
	var b strings.Builder
	b.WriteString(Persona)

	if analysis != nil {
		b.WriteString("\n\n")
		b.WriteString(contextSentence(*analysis))
	}

	b.WriteString("\n\nUser: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")
	return b.String()
}

var _ domain.ComposeFunc = ComposePrompt

func contextSentence(analysis domain.AnalysisResult) string {
	feedback := strings.Join(analysis.Feedback, ", ")
	if feedback == "" {
		feedback = "none"
	}
	return fmt.Sprintf(
		"The user just completed a %s workout with %d reps and a form score of %s/10. Feedback from the analysis: %s.",
		analysis.ExerciseName,
		analysis.RepCount,
		strconv.FormatFloat(analysis.FormScore, 'f', -1, 64),
		feedback,
	)
}
