package coach

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"example.com/formcoach/internal/domain"
)

const (
	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"

	providerOpenAI = "openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completions API. The prompt
// is sent as a single user message with the shared sampling configuration;
// that API has no per-request safety settings.
type OpenAIClient struct {
	cli  *openai.Client
	opts clientOptions
}

var _ domain.Completer = (*OpenAIClient)(nil)

// NewOpenAIClient constructs a client. An empty base URL keeps the library default.
func NewOpenAIClient(apiKey string, opts ...Option) *OpenAIClient {
	o := buildOptions("", DefaultOpenAIModel, opts)

	clientConfig := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(o.baseURL, "/")
	}
	clientConfig.HTTPClient = o.httpClient

	return &OpenAIClient{cli: openai.NewClientWithConfig(clientConfig), opts: o}
}

// Complete returns the first choice's content unmodified.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (text string, err error) {
	start := time.Now()
	defer func() { recordRequest(providerOpenAI, start, err) }()

	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.opts.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: Temperature,
		TopP:        TopP,
		MaxTokens:   MaxOutputTokens,
	})
	if err != nil {
		return "", c.mapError(err)
	}

	if len(resp.Choices) == 0 {
		return "", invalidResponse("no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		c.opts.logger.Warn().Int("status", apiErr.HTTPStatusCode).Str("provider", providerOpenAI).Msg("completion provider rejected request")
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		c.opts.logger.Warn().Int("status", reqErr.HTTPStatusCode).Str("provider", providerOpenAI).Msg("completion provider rejected request")
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return transportError(err)
}
