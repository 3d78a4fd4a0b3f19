package coach

import (
	"context"
	"fmt"
	"time"

	"example.com/formcoach/internal/domain"
)

const providerUnavailable = "unavailable"

// UnavailableClient stands in for a provider that could not be configured.
// Every completion fails with domain.ErrCompletion so only chat is affected.
type UnavailableClient struct {
	Cause error
}

var _ domain.Completer = UnavailableClient{}

// Complete always fails.
func (c UnavailableClient) Complete(ctx context.Context, prompt string) (string, error) {
	err := fmt.Errorf("%w: %w", domain.ErrCompletion, c.Cause)
	recordRequest(providerUnavailable, time.Now(), err)
	return "", err
}
