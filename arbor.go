package arbor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/internal/state"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/session"
)

// Version is the release of the library and CLI. Overridden at build time
// with -ldflags "-X github.com/aretw0/arbor.Version=...".
var Version = "0.1.0-dev"

// ErrClosed is returned by every operation on a closed Workflow.
var ErrClosed = errors.New("workflow is closed")

// Workflow is a single instance of a compiled graph: its own state, its
// own history and, when a store is configured, its own artifacts.
type Workflow struct {
	engine  *runtime.Engine
	manager *state.Manager
	store   ports.ArtifactStore
	closer  io.Closer

	mu     sync.Mutex
	closed bool
}

var _ session.Instance = (*runtime.Engine)(nil)
var _ ports.Workflow = (*Workflow)(nil)

// Compile parses and compiles a template without creating an instance.
// When a loader is configured name is looked up there, otherwise it is a
// file path.
func Compile(name string, opts ...Option) (*domain.Graph, error) {
	cfg := newConfig(opts)
	return cfg.compile(name)
}

// Load compiles the template at path (or named by the loader) and creates
// a workflow instance from it.
func Load(path string, opts ...Option) (*Workflow, error) {
	cfg := newConfig(opts)
	graph, err := cfg.compile(path)
	if err != nil {
		cfg.release()
		return nil, err
	}
	return cfg.build(graph)
}

// New creates a workflow instance from anything that builds a graph: a
// dsl.Builder, a compiled *domain.Graph or a GraphBuilderFunc.
func New(b domain.GraphBuilder, opts ...Option) (*Workflow, error) {
	cfg := newConfig(opts)
	if b == nil {
		cfg.release()
		return nil, fmt.Errorf("graph builder is nil")
	}
	graph, err := b.BuildGraph()
	if err != nil {
		cfg.release()
		return nil, err
	}
	return cfg.build(graph)
}

// SessionFactory returns a session.Factory creating instances of graph, so
// a session.Manager can host many runs of one compiled template. Options
// naming a store or a session ID are ignored: the manager supplies both.
func SessionFactory(graph *domain.Graph, opts ...Option) session.Factory {
	return func(sessionID string, store ports.ArtifactStore) (session.Instance, error) {
		cfg := newConfig(opts)
		cfg.store = store
		cfg.sessionID = sessionID
		cfg.namespace = false
		eng, err := cfg.engine(graph)
		if err != nil {
			return nil, err
		}
		return eng, nil
	}
}

func (c *config) compile(name string) (*domain.Graph, error) {
	comp := compiler.New(
		compiler.WithBindings(c.bindings),
		compiler.WithNodes(c.registry),
		compiler.WithTypes(c.types),
		compiler.WithLogger(c.logger),
	)
	if c.loader != nil {
		data, err := c.loader.Load(name)
		if err != nil {
			return nil, &domain.CompileError{Msg: fmt.Sprintf("cannot load template %q", name), Err: err}
		}
		return comp.CompileBytes(data)
	}
	return comp.CompileFile(name)
}

func (c *config) build(graph *domain.Graph) (*Workflow, error) {
	if c.logDir != "" {
		logger, closer, err := logging.OpenFile(c.logDir, graph.Name, c.logLevel)
		if err != nil {
			return nil, err
		}
		c.logger = logger
		c.closer = closer
	}
	eng, err := c.engine(graph)
	if err != nil {
		c.release()
		return nil, err
	}
	return &Workflow{engine: eng, manager: eng.State(), store: c.store, closer: c.closer}, nil
}

// engine wires state manager and runtime for graph.
func (c *config) engine(graph *domain.Graph) (*runtime.Engine, error) {
	if err := graph.Check(); err != nil {
		return nil, err
	}
	store := c.store
	if store == nil {
		store = memory.NewStore()
	}
	if c.namespace && c.sessionID != "" {
		store = ports.Namespace(store, c.sessionID)
	}
	c.store = store

	maxHistory := graph.Settings.MaxHistory
	if c.maxHistory > 0 {
		maxHistory = c.maxHistory
	}
	strict := graph.Settings.DebugMode
	if c.strict != nil {
		strict = *c.strict
	}
	logger := c.logger
	if c.sessionID != "" {
		logger = logger.With("session", c.sessionID)
	}

	manager := state.New(graph.Schema, store,
		state.WithMaxHistory(maxHistory),
		state.WithPersistence(graph.Settings.SaveArtifacts),
		state.WithStrict(strict),
		state.WithLogger(logger),
	)
	opts := []runtime.Option{
		runtime.WithRegistry(c.registry),
		runtime.WithLogger(c.logger),
		runtime.WithLifecycleHooks(c.hooks),
		runtime.WithStrict(strict),
		runtime.WithSessionID(c.sessionID),
	}
	if c.clients != nil {
		opts = append(opts, runtime.WithClients(c.clients))
	}
	if len(c.exitCommands) > 0 {
		opts = append(opts, runtime.WithExitCommands(c.exitCommands...))
	}
	return runtime.New(graph, manager, opts...)
}

func (c *config) release() {
	if c.closer != nil {
		c.closer.Close()
		c.closer = nil
	}
}

func (w *Workflow) check() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return nil
}

// Run initializes the state from initial and runs until the workflow
// suspends, terminates or fails.
func (w *Workflow) Run(ctx context.Context, initial map[string]any) (*domain.Result, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	return w.engine.Run(ctx, initial)
}

// Resume feeds input to a suspended run.
func (w *Workflow) Resume(ctx context.Context, input string) (*domain.Result, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	return w.engine.Resume(ctx, input)
}

// Restore picks up a run recorded in the store by an earlier process.
// It returns domain.ErrArtifactNotFound when there is nothing to restore.
func (w *Workflow) Restore(ctx context.Context) (*domain.Result, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	return w.engine.Restore(ctx)
}

// Checkpoint persists the newest snapshot to the checkpoint slot.
func (w *Workflow) Checkpoint(ctx context.Context) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.engine.Checkpoint(ctx)
}

// Graph returns the compiled graph.
func (w *Workflow) Graph() *domain.Graph {
	return w.engine.Graph()
}

// Status returns the lifecycle status of the run.
func (w *Workflow) Status() domain.Status {
	return w.engine.Status()
}

// Current returns a copy of the current values.
func (w *Workflow) Current() map[string]any {
	return w.engine.Current()
}

// Pending returns the intervene node waiting for input, if any.
func (w *Workflow) Pending() string {
	return w.engine.Pending()
}

// History returns the in-memory snapshot window, oldest first.
func (w *Workflow) History() []*domain.Snapshot {
	return w.manager.History()
}

// Store returns the artifact store of the instance, already namespaced by
// session when one was given.
func (w *Workflow) Store() ports.ArtifactStore {
	return w.store
}

// Close writes a final checkpoint and releases the log file. It is safe to
// call more than once.
func (w *Workflow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	var errs []error
	if w.manager.Latest() != nil {
		if err := w.engine.Checkpoint(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
		}
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// config collects the options of Load, New and SessionFactory.
type config struct {
	logger       *slog.Logger
	logDir       string
	logLevel     slog.Level
	closer       io.Closer
	registry     *registry.Registry
	types        *schema.Registry
	bindings     map[string]any
	loader       ports.TemplateLoader
	store        ports.ArtifactStore
	namespace    bool
	sessionID    string
	strict       *bool
	maxHistory   int
	hooks        domain.LifecycleHooks
	clients      ClientSource
	exitCommands []string
}

func newConfig(opts []Option) *config {
	c := &config{
		logger:    logging.NewNop(),
		logLevel:  slog.LevelInfo,
		registry:  registry.NewRegistry(),
		namespace: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures Load, New and SessionFactory.
type Option func(*config)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLogFile sends logs to dir/<workflow name>.log; Close releases the
// file.
func WithLogFile(dir string, level slog.Level) Option {
	return func(c *config) {
		c.logDir = dir
		c.logLevel = level
	}
}

// WithRegistry sets the handlers of custom node kinds.
func WithRegistry(r *registry.Registry) Option {
	return func(c *config) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithTypes sets the registry resolving state types and bundles.
func WithTypes(types *schema.Registry) Option {
	return func(c *config) {
		c.types = types
	}
}

// WithBindings sets the values substituted for ${name} in templates.
func WithBindings(bindings map[string]any) Option {
	return func(c *config) {
		c.bindings = bindings
	}
}

// WithLoader makes Load and Compile resolve template names through l
// instead of the filesystem.
func WithLoader(l ports.TemplateLoader) Option {
	return func(c *config) {
		c.loader = l
	}
}

// WithStore sets where snapshots, checkpoints and the cursor are kept.
// Without it the workflow keeps them in memory.
func WithStore(store ports.ArtifactStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithSessionID tags logs and events and namespaces the store, so several
// sessions can share one store.
func WithSessionID(id string) Option {
	return func(c *config) {
		c.sessionID = id
	}
}

// WithStrict overrides the template's debug_mode.
func WithStrict(strict bool) Option {
	return func(c *config) {
		c.strict = &strict
	}
}

// WithMaxHistory overrides the template's max_history.
func WithMaxHistory(n int) Option {
	return func(c *config) {
		c.maxHistory = n
	}
}

// WithHooks registers lifecycle hooks; repeated calls accumulate.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// ClientSource resolves a model name to a client; *clients.Factory is one.
type ClientSource = runtime.ClientSource

// WithClients sets where model clients come from.
func WithClients(clients ClientSource) Option {
	return func(c *config) {
		c.clients = clients
	}
}

// WithExitCommands overrides the phrases that end a suspended run.
func WithExitCommands(phrases ...string) Option {
	return func(c *config) {
		c.exitCommands = phrases
	}
}
