package clients

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/arbor/pkg/ports"
)

// Constructor builds the client for a model name.
type Constructor func(model string) (ports.ModelClient, error)

// Factory resolves model names to clients. Clients are built once per name
// and reused.
type Factory struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	fallback     Constructor
	clients      map[string]ports.ModelClient
}

// NewFactory returns a factory that knows the "mock" model.
func NewFactory() *Factory {
	f := &Factory{
		constructors: make(map[string]Constructor),
		clients:      make(map[string]ports.ModelClient),
	}
	f.Register(MockName, func(string) (ports.ModelClient, error) {
		return NewMock(), nil
	})
	return f
}

// Register binds a model name to a constructor.
func (f *Factory) Register(model string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[model] = ctor
	delete(f.clients, model)
}

// Set binds a model name to a ready client.
func (f *Factory) Set(model string, client ports.ModelClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[model] = client
}

// Fallback sets the constructor used for names nothing was registered for.
func (f *Factory) Fallback(ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = ctor
}

// Names lists the registered model names, sorted.
func (f *Factory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Client returns the client for model. Unknown names, and constructors
// that fail, yield a client whose every call fails, so a workflow naming an
// unreachable model still compiles and runs until it needs the model.
func (f *Factory) Client(model string) ports.ModelClient {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[model]; ok {
		return c
	}
	ctor, ok := f.constructors[model]
	if !ok {
		ctor = f.fallback
	}
	if ctor == nil {
		return Unavailable(model, fmt.Errorf("no client registered for model %q", model))
	}
	c, err := ctor(model)
	if err != nil {
		return Unavailable(model, err)
	}
	f.clients[model] = c
	return c
}

type unavailable struct {
	model string
	err   error
}

// Unavailable returns a client that fails every call with err.
func Unavailable(model string, err error) ports.ModelClient {
	return &unavailable{model: model, err: err}
}

func (u *unavailable) Name() string { return u.model }

func (u *unavailable) Generate(ctx context.Context, messages []ports.Message, opts ports.GenerateOptions) (string, error) {
	return "", fmt.Errorf("model %s unavailable: %w", u.model, u.err)
}
