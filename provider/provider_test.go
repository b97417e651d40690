package provider

import (
	"errors"
	"testing"

	"github.com/mohammad-safakhou/researcher/config"
)

func TestNewInferer(t *testing.T) {
	if _, err := NewInferer(config.LLMConfig{Inferer: "openai"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewInferer(config.LLMConfig{Inferer: "gemini", APIKey: "k"}); err == nil {
		t.Fatalf("expected unsupported inferer error")
	}
	inf, err := NewInferer(config.LLMConfig{Inferer: "openai", APIKey: "k", Model: "gpt-4o"})
	if err != nil || inf == nil {
		t.Fatalf("NewInferer = %v, %v", inf, err)
	}
}

func TestNewEmbedder(t *testing.T) {
	emb, err := NewEmbedder("none", config.LLMConfig{})
	if err != nil || emb != nil {
		t.Fatalf("NewEmbedder(none) = %v, %v", emb, err)
	}
	if _, err := NewEmbedder("openai", config.LLMConfig{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewEmbedder("word2vec", config.LLMConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected unsupported embeddings error")
	}
	emb, err = NewEmbedder("openai", config.LLMConfig{APIKey: "k", EmbeddingModel: "text-embedding-3-small"})
	if err != nil || emb == nil {
		t.Fatalf("NewEmbedder(openai) = %v, %v", emb, err)
	}
}
