package coach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/formcoach/internal/domain"
)

const providerMock = "mock"

// MockClient answers locally without any network call. Answers depend only on the prompt.
type MockClient struct{}

var _ domain.Completer = MockClient{}

// Complete echoes the user's message back inside a canned coaching reply.
func (MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		err = transportError(err)
		recordRequest(providerMock, start, err)
		return "", err
	}
	recordRequest(providerMock, start, nil)
	return fmt.Sprintf("Great question about %q! Keep your movements controlled, breathe steadily and stop if anything hurts.", userMessage(prompt)), nil
}

func userMessage(prompt string) string {
	idx := strings.LastIndex(prompt, "User: ")
	if idx < 0 {
		return strings.TrimSpace(prompt)
	}
	msg := prompt[idx+len("User: "):]
	msg = strings.TrimSuffix(msg, "\nAssistant:")
	return strings.TrimSpace(msg)
}
