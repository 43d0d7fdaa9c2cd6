package runner

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents a run result to the user.
	Output(ctx context.Context, res *domain.Result) error

	// Input reads a response from the user.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message to the user (status updates,
	// warnings). This is distinct from content rendering.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// assistantMessages returns the contents of the assistant entries of the
// messages field, oldest first.
func assistantMessages(values map[string]any) []string {
	var out []string
	add := func(m map[string]any) {
		if role, _ := m["role"].(string); role != "assistant" {
			return
		}
		if content, ok := m["content"].(string); ok {
			out = append(out, content)
		}
	}
	switch msgs := values["messages"].(type) {
	case []any:
		for _, item := range msgs {
			if m, ok := item.(map[string]any); ok {
				add(m)
			}
		}
	case []map[string]any:
		for _, m := range msgs {
			add(m)
		}
	}
	return out
}
