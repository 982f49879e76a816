package ai

import "context"

// Client is the entry point used by the question synthesizer. It fixes the
// request shape (JSON mode, token ceiling) around a Provider.
type Client struct {
	provider   Provider
	configured bool
	maxTokens  int
}

// NewClient wraps p. A provider that exposes Configured() is consulted for
// its key; any other provider is assumed ready.
func NewClient(p Provider, maxTokens int) *Client {
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	configured := p != nil
	if c, ok := p.(interface{ Configured() bool }); ok {
		configured = c.Configured()
	}
	return &Client{provider: p, configured: configured, maxTokens: maxTokens}
}

// Configured reports whether requests can be sent.
func (c *Client) Configured() bool { return c != nil && c.configured }

// ChatComplete sends one system+user exchange in JSON object mode.
func (c *Client) ChatComplete(ctx context.Context, system, user string) (*ChatResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	return c.provider.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: c.maxTokens,
		JSONMode:  true,
	})
}
