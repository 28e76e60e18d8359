// Package brain talks to the text-generation backend and builds persona prompts.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupportedBackend is returned for backend keys outside the known set
var ErrUnsupportedBackend = errors.New("unsupported backend")

// Generator turns a system prompt and a user message into reply text
type Generator interface {
	Chat(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

type Backend string

const (
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "anthropic"
	BackendDeepSeek  Backend = "deepseek"
	BackendOllama    Backend = "ollama"
)

// Backends lists every supported generation backend
var Backends = []Backend{BackendOpenAI, BackendAnthropic, BackendDeepSeek, BackendOllama}

// ParseBackend validates a backend key
func ParseBackend(name string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
}

// DetectBackend picks a backend from whichever API keys are present
func DetectBackend(keys map[Backend]string) Backend {
	for _, b := range []Backend{BackendAnthropic, BackendOpenAI, BackendDeepSeek} {
		if keys[b] != "" {
			return b
		}
	}
	return BackendOllama
}

type Config struct {
	Backend     Backend
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

type backendDefaults struct {
	baseURL string
	model   string
}

// All four backends speak the OpenAI chat-completions dialect
var defaults = map[Backend]backendDefaults{
	BackendOpenAI:    {baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
	BackendAnthropic: {baseURL: "https://api.anthropic.com/v1/", model: "claude-sonnet-4-20250514"},
	BackendDeepSeek:  {baseURL: "https://api.deepseek.com/v1", model: "deepseek-chat"},
	BackendOllama:    {baseURL: "http://localhost:11434/v1", model: "llama3.2"},
}

// New builds the generator for cfg.Backend
func New(cfg Config, logger *zap.Logger) (Generator, error) {
	d, ok := defaults[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = d.model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Backend == BackendOllama && cfg.APIKey == "" {
		cfg.APIKey = "ollama"
	}
	return NewOpenAIGenerator(cfg, logger), nil
}
