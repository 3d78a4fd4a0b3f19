package coach

import (
	"fmt"

	"github.com/rs/zerolog"

	"example.com/formcoach/internal/config"
	"example.com/formcoach/internal/domain"
)

// NewCompleter returns the completion client selected by CHAT_PROVIDER.
func NewCompleter(cfg config.Config, logger zerolog.Logger) (domain.Completer, error) {
	switch cfg.ChatProvider {
	case config.ChatGemini, "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("coach: %w: GEMINI_API_KEY is required for the gemini provider", ErrProviderNotConfigured)
		}
		return NewGeminiClient(cfg.GeminiAPIKey,
			WithBaseURL(cfg.GeminiBaseURL),
			WithModel(cfg.GeminiModel),
			WithTimeout(cfg.ChatTimeout),
			WithLogger(logger),
		), nil
	case config.ChatOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("coach: %w: OPENAI_API_KEY is required for the openai provider", ErrProviderNotConfigured)
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey,
			WithBaseURL(cfg.OpenAIBaseURL),
			WithModel(cfg.OpenAIModel),
			WithTimeout(cfg.ChatTimeout),
			WithLogger(logger),
		), nil
	case config.ChatMock:
		logger.Warn().Msg("using mock chat provider")
		return MockClient{}, nil
	default:
		return nil, fmt.Errorf("coach: unsupported chat provider %q", cfg.ChatProvider)
	}
}
