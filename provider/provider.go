package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/researcher/config"
	openai_provider "github.com/mohammad-safakhou/researcher/provider/openai"
)

// Client names an LLM backend.
type Client string

const (
	OpenAI Client = "openai"
	// None disables a capability; only valid for embeddings.
	None Client = "none"
)

// ErrMissingAPIKey is returned when a backend needs a key and none is configured.
var ErrMissingAPIKey = errors.New("llm api key not set (llm.api_key or OPENAI_API_KEY)")

// Inferer answers a problem statement from retrieved context.
type Inferer interface {
	Infer(ctx context.Context, retrieved, problem string) (string, error)
}

// Embedder turns texts into vectors, one per text.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// NewInferer builds the inferer named by cfg.Inferer.
func NewInferer(cfg config.LLMConfig) (Inferer, error) {
	switch Client(cfg.Inferer) {
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return openai_provider.NewOpenAIClient(openAIOptions(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported inferer %q", cfg.Inferer)
	}
}

// NewEmbedder builds the embedder named by kind. It returns nil, nil for "none".
func NewEmbedder(kind string, cfg config.LLMConfig) (Embedder, error) {
	switch Client(kind) {
	case None:
		return nil, nil
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return openai_provider.NewOpenAIClient(openAIOptions(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported embeddings %q", kind)
	}
}

func openAIOptions(cfg config.LLMConfig) openai_provider.Options {
	return openai_provider.Options{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		CompletionModel: cfg.Model,
		EmbeddingModel:  cfg.EmbeddingModel,
		Temperature:     cfg.Temperature,
		MaxTokens:       cfg.MaxTokens,
		MaxRetries:      cfg.MaxRetries,
		Timeout:         cfg.Timeout,
	}
}
