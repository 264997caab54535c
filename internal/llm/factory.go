package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
)

// Provider names accepted by NewContentGenerator.
const (
	ProviderTemplate = "template"
	ProviderOpenAI   = "openai"
)

// NewContentGenerator creates the generator selected by cfg.LLMProvider,
// wrapped in a circuit breaker. The openai provider without an API key falls
// back to templates.
func NewContentGenerator(cfg config.LLMConfig, logger *zap.Logger) (*BreakerGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var gen ContentGenerator
	switch strings.ToLower(cfg.LLMProvider) {
	case ProviderTemplate, "":
		gen = NewTemplateGenerator(nil)
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("llm: openai provider selected without API key, using templates")
			gen = NewTemplateGenerator(nil)
			break
		}
		gen = NewOpenAIClient(OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIModel,
			BaseURL:   cfg.OpenAIBaseURL,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.LLMProvider)
	}

	logger.Info("llm: content generator ready", zap.String("model", gen.GetModel()))
	return NewBreakerGenerator(gen, NewCircuitBreaker(DefaultCircuitBreakerConfig(), logger)), nil
}
