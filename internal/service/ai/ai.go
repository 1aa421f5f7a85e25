// Package ai wraps the upstream chat completion API: model validation,
// cost computation from reported usage, and retry with backoff on
// transient failures.
package ai

import "context"

// Message is one turn of the prompt sent to the model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the per-request generation knobs
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// Usage is the provider-reported token breakdown. Billing always uses these
// numbers, never the local estimate.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of one completed generation
type Response struct {
	ID           string
	Created      int64
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
	Cost         float64
}

// StreamChunk is one element of a streaming generation. Content chunks come
// first; the final chunk carries the assembled Response (or Err on failure).
type StreamChunk struct {
	Content string
	Final   *Response
	Err     error
}

// Provider is the gateway interface the services depend on
type Provider interface {
	GenerateResponse(ctx context.Context, messages []Message, model string, opts Options) (*Response, error)
	GenerateResponseStream(ctx context.Context, messages []Message, model string, opts Options) (<-chan StreamChunk, error)
	DefaultModel() string
	ValidateModel(model string) error
}

// EstimateTokens is the crude length/4 heuristic used only for pre-flight
// sizing checks, never for billing.
func EstimateTokens(text string) int {
	return len(text) / 4
}
