package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/formcoach/internal/domain"
)

const (
	// DefaultGeminiBaseURL is the public Generative Language API root.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-1.5-flash"

	providerGemini = "gemini"
	blockThreshold = "BLOCK_MEDIUM_AND_ABOVE"
)

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GeminiClient calls the generateContent endpoint once per prompt. It never
// retries and never substitutes a default answer.
type GeminiClient struct {
	apiKey string
	opts   clientOptions
}

var _ domain.Completer = (*GeminiClient)(nil)

// NewGeminiClient constructs a client authenticating with apiKey.
func NewGeminiClient(apiKey string, opts ...Option) *GeminiClient {
	o := buildOptions(DefaultGeminiBaseURL, DefaultGeminiModel, opts)
	o.baseURL = strings.TrimRight(o.baseURL, "/")
	return &GeminiClient{apiKey: apiKey, opts: o}
}

// Complete returns the first candidate's text unmodified.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (text string, err error) {
	start := time.Now()
	defer func() { recordRequest(providerGemini, start, err) }()

	body, err := json.Marshal(newGeminiRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.opts.baseURL, url.PathEscape(c.opts.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		// The request URL carries the key; report only the cause.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		c.opts.logger.Warn().Int("status", resp.StatusCode).Str("provider", providerGemini).Msg("completion provider rejected request")
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var payload geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", invalidResponse(fmt.Sprintf("decode body: %v", err))
	}
	if len(payload.Candidates) == 0 {
		return "", invalidResponse("no candidates")
	}
	content := payload.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0].Text == nil {
		return "", invalidResponse("first candidate has no text part")
	}
	return *content.Parts[0].Text, nil
}

func newGeminiRequest(prompt string) geminiRequest {
	safety := make([]geminiSafetySetting, 0, len(harmCategories))
	for _, category := range harmCategories {
		safety = append(safety, geminiSafetySetting{Category: category, Threshold: blockThreshold})
	}
	return geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     Temperature,
			TopK:            TopK,
			TopP:            TopP,
			MaxOutputTokens: MaxOutputTokens,
		},
		SafetySettings: safety,
	}
}
