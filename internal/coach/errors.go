package coach

import (
	"errors"
	"fmt"

	"example.com/formcoach/internal/domain"
)

// ErrProviderNotConfigured is returned by NewCompleter when the selected provider has no API key.
var ErrProviderNotConfigured = errors.New("chat provider not configured")

// StatusError reports a non-success HTTP status from a completion provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion provider returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match domain.ErrCompletion.
func (e *StatusError) Unwrap() error {
	return domain.ErrCompletion
}

func invalidResponse(detail string) error {
	return fmt.Errorf("%w: %w: %s", domain.ErrCompletion, domain.ErrInvalidCompletionResponse, detail)
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrCompletion, err)
}
