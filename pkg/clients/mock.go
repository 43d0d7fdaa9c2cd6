package clients

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/ports"
)

// MockName is the model name served by Mock.
const MockName = "mock"

// Mock is an offline client. It replies with queued responses in order and,
// once they run out, echoes the content of the last message.
type Mock struct {
	mu        sync.Mutex
	responses []string
	calls     [][]ports.Message
}

// NewMock creates a mock that returns responses before falling back to echo.
func NewMock(responses ...string) *Mock {
	return &Mock{responses: responses}
}

func (m *Mock) Name() string { return MockName }

func (m *Mock) Generate(ctx context.Context, messages []ports.Message, opts ports.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]ports.Message(nil), messages...))
	if len(m.responses) > 0 {
		r := m.responses[0]
		m.responses = m.responses[1:]
		return r, nil
	}
	if len(messages) == 0 {
		return "", nil
	}
	return messages[len(messages)-1].Content, nil
}

// Calls returns the messages of every Generate call so far.
func (m *Mock) Calls() [][]ports.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]ports.Message(nil), m.calls...)
}
