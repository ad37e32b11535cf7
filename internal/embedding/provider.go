package embedding

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Provider names accepted by New.
const (
	ProviderHash   = "hash"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config 选择并配置向量服务提供方。
type Config struct {
	Provider  string
	Model     string
	Dimension int
	Timeout   time.Duration
	APIKey    string
	BaseURL   string
	Project   string
	Location  string
}

// New builds a Client for cfg.Provider.
func New(ctx context.Context, cfg Config) (*Client, error) {
	switch cfg.Provider {
	case "", ProviderHash:
		e := NewHashEmbedder(cfg.Dimension)
		return NewClient(e, HashModel, e.Dimension(), cfg.Timeout), nil

	case ProviderGemini:
		if cfg.Dimension <= 0 {
			return nil, goerr.New("gemini embedder requires an explicit dimension")
		}
		e, err := NewGemini(ctx, GeminiConfig{
			APIKey:    cfg.APIKey,
			Project:   cfg.Project,
			Location:  cfg.Location,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		return NewClient(e, e.model, cfg.Dimension, cfg.Timeout), nil

	case ProviderOpenAI:
		if cfg.Dimension <= 0 {
			return nil, goerr.New("openai embedder requires an explicit dimension")
		}
		e, err := NewOpenAI(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		return NewClient(e, e.model, cfg.Dimension, cfg.Timeout), nil
	}

	return nil, goerr.New("unknown embedding provider", goerr.V("provider", cfg.Provider))
}
