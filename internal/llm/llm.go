// Package llm abstracts hosted completion backends behind a single
// synchronous Provider interface. Model and temperature are fixed when the
// provider is constructed; callers only supply conversation context.
package llm

import "context"

// Role identifies the speaker of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one utterance of conversation context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request carries the ordered conversation context for one completion.
type Request struct {
	// Messages in chronological order. The final entry is the pending user
	// utterance.
	Messages []Message `json:"messages"`
	// System is an optional instruction prefix.
	System string `json:"system,omitempty"`
}

// Usage tracks token consumption reported by the backend.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a single generated completion.
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Provider is the interface all completion backends implement.
type Provider interface {
	// Complete sends the context and returns the generated reply. Failures are
	// reported as *UpstreamError so callers can distinguish retryable kinds.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name (e.g. "groq", "anthropic").
	Name() string

	// Model returns the model identifier fixed at construction.
	Model() string
}
