// Package embedding converts text into fixed-length vectors for retrieval memory.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupportedBackend is returned for unknown embedding backend keys
var ErrUnsupportedBackend = errors.New("unsupported embedding backend")

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	Dims() int
	Name() string
}

// VocabularyBuilder is implemented by embedders that need corpus statistics
// before their first Embed call.
type VocabularyBuilder interface {
	BuildVocabulary(texts []string)
}

// VocabularyStore is implemented by embedders whose vocabulary must be
// shared between the indexing and the serving process.
type VocabularyStore interface {
	SaveVocabulary(path string) error
	LoadVocabulary(path string) (bool, error)
}

type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendOllama Backend = "ollama"
	BackendLocal  Backend = "local"
)

func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendOpenAI, BackendOllama, BackendLocal:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
	}
}

type Config struct {
	Backend    Backend
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// New builds an embedder. The OpenAI backend without a key degrades to the
// local embedder so indexing keeps working offline.
func New(cfg Config, logger *zap.Logger) (Embedder, error) {
	switch cfg.Backend {
	case BackendLocal:
		return NewLocalEmbedder(cfg.Dimensions), nil
	case BackendOpenAI:
		if cfg.APIKey == "" {
			logger.Warn("No OpenAI API key for embeddings, using local embedder")
			return NewLocalEmbedder(cfg.Dimensions), nil
		}
		return NewOpenAIEmbedder(cfg), nil
	case BackendOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
		if cfg.Model == "" {
			cfg.Model = "nomic-embed-text"
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
		return NewOpenAIEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
