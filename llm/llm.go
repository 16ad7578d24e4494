package llm

import (
	"context"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Cost         float64
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

// Request describes a single chat completion. ForceJSON asks the provider
// for a JSON-object response; providers that reject the response_format
// parameter fall back to a plain completion.
type Request struct {
	Model      string
	Messages   []Message
	ForceJSON  bool
	Parameters map[string]any
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}
