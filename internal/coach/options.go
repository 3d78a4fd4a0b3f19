package coach

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Sampling configuration shared by every provider. Callers cannot change it.
const (
	Temperature     = 0.7
	TopK            = 40
	TopP            = 0.95
	MaxOutputTokens = 1024

	defaultTimeout = 30 * time.Second
)

// Option configures optional behaviour for the completion clients.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(o *clientOptions) {
		o.model = model
	}
}

// WithHTTPClient overrides the HTTP client, including its timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithLogger overrides the logger used to report upstream failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

func buildOptions(baseURL, model string, opts []Option) clientOptions {
	o := clientOptions{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
