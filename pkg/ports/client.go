package ports

import "context"

// Message is one turn of a model conversation.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// GenerateOptions carries per-call settings, typically a node's kwargs.
type GenerateOptions struct {
	Kwargs map[string]any
}

// ModelClient is the capability client handed to node handlers. Workflows
// declare one for text (llm) and optionally one for vision (vlm).
type ModelClient interface {
	// Name identifies the backing model, e.g. "gpt-4o".
	Name() string
	// Generate returns the model's reply to messages.
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}
