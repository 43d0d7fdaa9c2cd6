package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/state"
	"github.com/aretw0/arbor/pkg/clients"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/expr"
	"github.com/aretw0/arbor/pkg/nodes"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
)

// DefaultExitCommands end a suspended run when contained in the input.
var DefaultExitCommands = []string{"stop workflow", "quit workflow", "terminate workflow"}

// ClientSource resolves a model name to a client.
type ClientSource interface {
	Client(model string) ports.ModelClient
}

// Engine drives one workflow instance over a compiled graph. It is
// single-threaded: Run and Resume serialize on the instance.
type Engine struct {
	graph    *domain.Graph
	state    *state.Manager
	registry *registry.Registry
	clients  ClientSource
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	strict       bool
	exitCommands []string
	sessionID    string

	programs map[string]*expr.Program
	handlers map[string]registry.Handler

	mu      sync.Mutex
	status  domain.Status
	values  map[string]any
	node    string
	pending string
}

// Option configures the Engine.
type Option func(*Engine)

// WithRegistry sets the handlers serving custom node kinds.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithClients sets where model clients come from.
func WithClients(c ClientSource) Option {
	return func(e *Engine) {
		e.clients = c
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithStrict overrides the graph's debug_mode. In strict mode runtime
// errors reach the caller unmodified.
func WithStrict(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithExitCommands overrides the graph's exit phrases.
func WithExitCommands(cmds ...string) Option {
	return func(e *Engine) {
		e.exitCommands = cmds
	}
}

// WithSessionID tags every lifecycle event and log line.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// New creates an engine for graph, recording state through manager.
// Conditions are compiled and every node resolved to its handler up front,
// so a graph that passes New cannot fail on a missing handler later.
func New(graph *domain.Graph, manager *state.Manager, opts ...Option) (*Engine, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if err := graph.Check(); err != nil {
		return nil, err
	}

	e := &Engine{
		graph:        graph,
		state:        manager,
		registry:     registry.NewRegistry(),
		clients:      clients.NewFactory(),
		logger:       logging.NewNop(),
		strict:       graph.Settings.DebugMode,
		exitCommands: graph.ExitCommands,
		programs:     make(map[string]*expr.Program),
		handlers:     make(map[string]registry.Handler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.exitCommands) == 0 {
		e.exitCommands = DefaultExitCommands
	}
	e.logger = e.logger.With("graph", graph.Name)
	if e.sessionID != "" {
		e.logger = e.logger.With("session", e.sessionID)
	}

	for _, id := range graph.Order {
		spec := graph.Nodes[id]
		if spec.Next.IsConditional() {
			prog, err := expr.Compile(spec.Next.Condition)
			if err != nil {
				return nil, &domain.CompileError{Path: "nodes." + id + ".next.condition", Msg: "invalid condition", Err: err}
			}
			e.programs[id] = prog
		}
		if spec.Synthetic {
			continue
		}
		h, err := e.resolve(spec)
		if err != nil {
			return nil, err
		}
		e.handlers[id] = h
	}
	return e, nil
}

// resolve picks the handler of a node: a registered handler for its kind
// wins, then the built-in prompt node.
func (e *Engine) resolve(spec *domain.NodeSpec) (registry.Handler, error) {
	if h, ok := e.registry.Lookup(spec.Type); ok {
		return h, nil
	}
	if spec.Type == domain.KindPrompt {
		return nodes.Prompt(spec, e.graph.Schema), nil
	}
	return nil, &domain.CompileError{Path: "nodes." + spec.ID + ".type", Msg: fmt.Sprintf("no handler registered for node type %q", spec.Type)}
}

// Graph returns the graph the engine walks.
func (e *Engine) Graph() *domain.Graph {
	return e.graph
}

// State returns the state manager of the instance.
func (e *Engine) State() *state.Manager {
	return e.state
}

// Status returns the lifecycle status; empty before the first Run.
func (e *Engine) Status() domain.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Current returns a copy of the current state values.
func (e *Engine) Current() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.CloneValues(e.values)
}

// Pending returns the intervene node waiting for input, if any.
func (e *Engine) Pending() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Run initializes the state from initial and drives the graph from its
// entry point until it suspends, terminates or fails.
func (e *Engine) Run(ctx context.Context, initial map[string]any) (*domain.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status = domain.StatusRunning
	e.node = ""
	e.pending = ""
	snap, err := e.state.Initialize(ctx, initial)
	if err != nil {
		return e.fail(ctx, e.graph.Entry, err)
	}
	e.values = snap.Clone()
	e.logger.InfoContext(ctx, "workflow started", "entry", e.graph.Entry)

	return e.drive(ctx, e.graph.Entry)
}

// Resume feeds input to a suspended run. Input containing one of the exit
// phrases ends the run with the state left as it was.
func (e *Engine) Resume(ctx context.Context, input string) (*domain.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != domain.StatusAwaitingInput {
		if e.status.Finished() {
			return nil, domain.ErrFinished
		}
		return nil, domain.ErrNotSuspended
	}

	guarded := e.pending
	inputNode := domain.InputNodeID(guarded)
	if in, ok := e.graph.Interrupts[guarded]; ok {
		inputNode = in
	}

	e.status = domain.StatusRunning
	e.pending = ""
	e.emitState(ctx, e.hooks.OnResume, domain.EventResume, inputNode, e.lastIndex(), nil)

	if e.isExit(input) {
		e.logger.InfoContext(ctx, "exit command received", "node", guarded)
		return e.terminate(ctx)
	}

	values, err := e.state.ApplyInput(e.values, input)
	if err != nil {
		return e.fail(ctx, inputNode, err)
	}
	snap, err := e.state.Snapshot(ctx, inputNode, values)
	if err != nil {
		return e.fail(ctx, inputNode, err)
	}
	e.values = values
	e.node = inputNode
	e.emitState(ctx, e.hooks.OnSnapshot, domain.EventSnapshot, inputNode, snap.Index, nil)

	return e.drive(ctx, guarded)
}

// Checkpoint writes the newest snapshot to the checkpoint slot.
func (e *Engine) Checkpoint(ctx context.Context) error {
	return e.state.Checkpoint(ctx, e.state.Latest())
}

// drive runs nodes starting at id until the run leaves RUNNING.
func (e *Engine) drive(ctx context.Context, id string) (*domain.Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if id == domain.Terminal {
			return e.terminate(ctx)
		}
		spec, ok := e.graph.Node(id)
		if !ok {
			return e.fail(ctx, id, &domain.RuntimeNodeError{Node: id, Err: fmt.Errorf("node does not exist")})
		}
		if spec.Synthetic {
			return e.suspend(ctx, spec)
		}

		next, err := e.step(ctx, spec)
		if err != nil {
			return e.fail(ctx, spec.ID, err)
		}
		id = next
	}
}

func (e *Engine) result() *domain.Result {
	return &domain.Result{
		Status:  e.status,
		Values:  domain.CloneValues(e.values),
		Pending: e.pending,
		Node:    e.node,
	}
}
