package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/minutes/internal/config"
)

func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "nvidia":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultNVIDIAURL
		}
		model := cfg.Model
		if model == "" {
			model = config.DefaultNVIDIAModel
		}
		return NewOpenAIClient(cfg.APIKey, model, baseURL), nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil

	case "claude":
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "ollama":
		// Ollama serves an OpenAI-compatible API under /v1.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		if logger != nil {
			logger.Info("using Ollama via OpenAI-compatible API", zap.String("base_url", baseURL))
		}

		// The key is ignored by Ollama but the client requires one.
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIClient(apiKey, cfg.Model, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
