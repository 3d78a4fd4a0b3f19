package coach

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/formcoach/internal/domain"
)

func newGeminiServer(t *testing.T, status int, body string, captured *geminiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		require.Equal(t, "secret", r.URL.Query().Get("key"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGemini(srv *httptest.Server) *GeminiClient {
	return NewGeminiClient("secret", WithBaseURL(srv.URL+"/"), WithModel("test-model"), WithTimeout(5*time.Second))
}

func TestGeminiCompleteReturnsFirstCandidateText(t *testing.T) {
	var captured geminiRequest
	srv := newGeminiServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  Push your knees out.\n"}]}},{"content":{"parts":[{"text":"second"}]}}]}`, &captured)

	text, err := newTestGemini(srv).Complete(context.Background(), "User: hi\nAssistant:")
	require.NoError(t, err)
	require.Equal(t, "  Push your knees out.\n", text)

	require.Len(t, captured.Contents, 1)
	require.Equal(t, "User: hi\nAssistant:", captured.Contents[0].Parts[0].Text)
	require.Equal(t, geminiGenerationConfig{Temperature: 0.7, TopK: 40, TopP: 0.95, MaxOutputTokens: 1024}, captured.GenerationConfig)
	require.Len(t, captured.SafetySettings, 4)
	for _, setting := range captured.SafetySettings {
		require.Equal(t, "BLOCK_MEDIUM_AND_ABOVE", setting.Threshold)
	}
}

func TestGeminiCompleteSurfacesStatusErrors(t *testing.T) {
	srv := newGeminiServer(t, http.StatusInternalServerError, `{"error":{"message":"backend exploded"}}`, nil)

	_, err := newTestGemini(srv).Complete(context.Background(), "prompt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
	require.Contains(t, err.Error(), "backend exploded")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.ErrorIs(t, err, domain.ErrCompletion)
	require.NotErrorIs(t, err, domain.ErrInvalidCompletionResponse)
}

func TestGeminiCompleteRejectsMissingCandidates(t *testing.T) {
	cases := map[string]string{
		"no candidates": `{"promptFeedback":{"blockReason":"SAFETY"}}`,
		"empty list":    `{"candidates":[]}`,
		"no content":    `{"candidates":[{"finishReason":"SAFETY"}]}`,
		"no parts":      `{"candidates":[{"content":{"parts":[]}}]}`,
		"no text":       `{"candidates":[{"content":{"parts":[{"inlineData":{}}]}}]}`,
		"not json":      `<html>`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newGeminiServer(t, http.StatusOK, body, nil)

			_, err := newTestGemini(srv).Complete(context.Background(), "prompt")
			require.ErrorIs(t, err, domain.ErrInvalidCompletionResponse)

			var statusErr *StatusError
			require.False(t, errors.As(err, &statusErr))
		})
	}
}

func TestGeminiCompleteHonoursContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestGemini(srv).Complete(ctx, "prompt")
	require.ErrorIs(t, err, domain.ErrCompletion)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotContains(t, err.Error(), "secret")
}

func TestGeminiStatusErrorCarriesFullBody(t *testing.T) {
	body := `{"error":{"message":"` + strings.Repeat("quota exceeded; ", 1024) + `"}}`
	srv := newGeminiServer(t, http.StatusTooManyRequests, body, nil)

	_, err := newTestGemini(srv).Complete(context.Background(), "prompt")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	require.Equal(t, body, statusErr.Body)
}
