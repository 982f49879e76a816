package ai

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConfigured is returned when no model API key is available.
var ErrNotConfigured = errors.New("model provider not configured: set OPENAI_API_KEY or GEMINI_API_KEY")

// Provider is the interface that all model backends must implement.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

// ChatRequest is a provider-agnostic request.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool // request JSON-formatted output
}

// ChatResponse is a provider-agnostic response.
type ChatResponse struct {
	Content    string
	TokensUsed int
	Model      string
	Provider   string
}

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// NewProvider builds the named backend. Anything other than "gemini"
// selects the OpenAI-compatible provider.
func NewProvider(name string, openai OpenAIConfig, gemini GeminiConfig) Provider {
	if strings.EqualFold(strings.TrimSpace(name), "gemini") {
		return NewGeminiProvider(gemini)
	}
	return NewOpenAIProvider(openai)
}
