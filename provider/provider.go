package provider

import (
	"context"
	"errors"

	"github.com/krxlab/ipo-advisor/config"
	openai_provider "github.com/krxlab/ipo-advisor/provider/openai"
)

// Provider is the interface every text-generation backend must satisfy.
// The workflow treats it as a black-box completion function; the retrieval
// gateway additionally uses it for query refinement and embeddings.
type Provider interface {
	Completion(ctx context.Context, system, user string) (string, error)
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// New creates a Provider from configuration.
func New(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key not set")
	}
	return openai_provider.NewClient(
		cfg.APIKey,
		cfg.BaseURL,
		cfg.ChatModel,
		cfg.EmbeddingModel,
		cfg.Temperature,
		cfg.MaxTokens,
		cfg.Timeout,
	), nil
}
