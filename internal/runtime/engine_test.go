package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/internal/state"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/clients"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/schema"
)

const counterTemplate = `
name: counter
state_defs:
  - State
  - [counter, int]
nodes:
  count:
    type: increment
    next:
      condition: "counter >= 3"
      then: finish
      else: count
  finish:
    type: stamp
    next: END
entry_point: count
`

const askTemplate = `
name: ask
state_defs:
  - State
  - [calls, int]
nodes:
  greet:
    type: stamp
    next: ask
  ask:
    type: echo
    next: END
entry_point: greet
intervene_before: [ask]
`

func handlers() *registry.Registry {
	reg := registry.NewRegistry()
	reg.Register("increment", func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		return map[string]any{"counter": st["counter"].(int) + 1}, nil
	})
	reg.Register("stamp", func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		return map[string]any{"output": "stamped"}, nil
	})
	return reg
}

type fixture struct {
	graph   *domain.Graph
	store   *memory.Store
	manager *state.Manager
	engine  *runtime.Engine
	calls   int
}

func newFixture(t *testing.T, template string, opts ...runtime.Option) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore()}

	reg := handlers()
	reg.Register("echo", func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		f.calls++
		return map[string]any{"output": "you said " + st["human_input"].(string)}, nil
	})

	graph, err := compiler.New(compiler.WithNodes(reg)).CompileBytes([]byte(template))
	require.NoError(t, err)
	f.graph = graph
	f.manager = state.New(graph.Schema, f.store, state.WithMaxHistory(graph.Settings.MaxHistory))

	f.engine, err = runtime.New(graph, f.manager, append([]runtime.Option{runtime.WithRegistry(reg)}, opts...)...)
	require.NoError(t, err)
	return f
}

func TestRunToCompletion(t *testing.T) {
	f := newFixture(t, counterTemplate)

	res, err := f.engine.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, 3, res.Values["counter"])
	assert.Equal(t, "stamped", res.Values["output"])
	assert.Equal(t, "finish", res.Values["current_node_type"])
	assert.Equal(t, "count", res.Values["previous_node_type"])
	assert.Equal(t, "finish", res.Node)
	assert.Equal(t, domain.StatusTerminated, f.engine.Status())

	// initial + three increments + finish
	assert.Equal(t, 5, f.manager.NextIndex())
	_, err = f.store.Read(context.Background(), state.CheckpointKey)
	assert.NoError(t, err)
}

func TestRunInitialValues(t *testing.T) {
	f := newFixture(t, counterTemplate)

	res, err := f.engine.Run(context.Background(), map[string]any{"counter": 10})
	require.NoError(t, err)
	assert.Equal(t, 11, res.Values["counter"])
}

func TestSuspendAndResume(t *testing.T) {
	f := newFixture(t, askTemplate)
	ctx := context.Background()

	res, err := f.engine.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingInput, res.Status)
	assert.True(t, res.Suspended())
	assert.Equal(t, "ask", res.Pending)
	assert.Equal(t, "stamped", res.Values["output"])
	assert.Zero(t, f.calls, "intervene node must not run before input")

	res, err = f.engine.Resume(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, "you said hello", res.Values["output"])
	assert.Equal(t, 1, f.calls)

	var attributed []string
	for _, s := range f.manager.History() {
		if s.Values["human_input"] == "hello" {
			attributed = append(attributed, s.Node)
		}
	}
	require.NotEmpty(t, attributed)
	assert.Equal(t, "ask_input", attributed[0])
}

func TestExitCommand(t *testing.T) {
	f := newFixture(t, askTemplate)
	ctx := context.Background()

	res, err := f.engine.Run(ctx, nil)
	require.NoError(t, err)
	before := res.Values

	res, err = f.engine.Resume(ctx, "Please STOP Workflow now")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, before, res.Values)
	assert.Zero(t, f.calls)
}

func TestCustomExitCommands(t *testing.T) {
	f := newFixture(t, askTemplate, runtime.WithExitCommands("bye"))
	ctx := context.Background()

	_, err := f.engine.Run(ctx, nil)
	require.NoError(t, err)
	res, err := f.engine.Resume(ctx, "stop workflow")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, 1, f.calls, "default phrases are replaced")
}

func TestResumeOutOfOrder(t *testing.T) {
	f := newFixture(t, askTemplate)
	ctx := context.Background()

	_, err := f.engine.Resume(ctx, "early")
	assert.ErrorIs(t, err, domain.ErrNotSuspended)

	_, err = f.engine.Run(ctx, nil)
	require.NoError(t, err)
	_, err = f.engine.Resume(ctx, "now")
	require.NoError(t, err)

	_, err = f.engine.Resume(ctx, "again")
	assert.ErrorIs(t, err, domain.ErrFinished)
}

func TestCycleThroughInterrupt(t *testing.T) {
	tmpl := `
name: loop
state_defs: [State, [rounds, int]]
nodes:
  chat:
    type: tick
    next:
      condition: "rounds < 2"
      then: chat
      else: END
entry_point: chat
intervene_before: [chat]
`
	reg := registry.NewRegistry()
	reg.Register("tick", func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		return map[string]any{"rounds": st["rounds"].(int) + 1}, nil
	})
	graph, err := compiler.New(compiler.WithNodes(reg)).CompileBytes([]byte(tmpl))
	require.NoError(t, err)
	eng, err := runtime.New(graph, state.New(graph.Schema, nil), runtime.WithRegistry(reg))
	require.NoError(t, err)

	ctx := context.Background()
	res, err := eng.Run(ctx, nil)
	require.NoError(t, err)
	require.True(t, res.Suspended())

	res, err = eng.Resume(ctx, "one")
	require.NoError(t, err)
	require.True(t, res.Suspended(), "looping back passes the input node again")
	assert.Equal(t, 1, res.Values["rounds"])

	res, err = eng.Resume(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, 2, res.Values["rounds"])
}

func failing(err error) registry.Handler {
	return func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		if err != nil {
			return nil, err
		}
		panic("boom")
	}
}

const failTemplate = `
name: fragile
state_defs: [State, [counter, int]]
nodes:
  count:
    type: increment
    next: explode
  explode:
    type: explode
    next: END
entry_point: count
`

func failFixture(t *testing.T, h registry.Handler, opts ...runtime.Option) (*runtime.Engine, *state.Manager) {
	t.Helper()
	reg := handlers()
	reg.Register("explode", h)
	graph, err := compiler.New(compiler.WithNodes(reg)).CompileBytes([]byte(failTemplate))
	require.NoError(t, err)
	m := state.New(graph.Schema, memory.NewStore())
	eng, err := runtime.New(graph, m, append([]runtime.Option{runtime.WithRegistry(reg)}, opts...)...)
	require.NoError(t, err)
	return eng, m
}

func TestFailureNonStrict(t *testing.T) {
	var failed []string
	hooks := domain.LifecycleHooks{
		OnFail: func(ctx context.Context, e *domain.StateEvent) {
			failed = append(failed, e.NodeID)
		},
	}
	eng, _ := failFixture(t, failing(errors.New("model offline")), runtime.WithLifecycleHooks(hooks))

	res, err := eng.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage(), "model offline")
	assert.Equal(t, []string{"explode"}, failed)

	// the last valid state survives for inspection
	assert.Equal(t, 1, eng.Current()["counter"])

	_, err = eng.Resume(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrFinished)
}

func TestFailureStrict(t *testing.T) {
	cause := errors.New("model offline")
	eng, _ := failFixture(t, failing(cause), runtime.WithStrict(true))

	res, err := eng.Run(context.Background(), nil)
	assert.Nil(t, res)
	var nodeErr *domain.RuntimeNodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "explode", nodeErr.Node)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, domain.StatusFailed, eng.Status())
}

func TestHandlerPanic(t *testing.T) {
	eng, _ := failFixture(t, failing(nil), runtime.WithStrict(true))

	_, err := eng.Run(context.Background(), nil)
	var nodeErr *domain.RuntimeNodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Contains(t, err.Error(), "boom")
}

func TestHandlerTypeMismatch(t *testing.T) {
	bad := func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		return map[string]any{"counter": "many"}, nil
	}

	eng, _ := failFixture(t, bad, runtime.WithStrict(true))
	_, err := eng.Run(context.Background(), nil)
	var mismatch *domain.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"counter"}, mismatch.Fields)

	eng, _ = failFixture(t, bad)
	res, err := eng.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, 1, eng.Current()["counter"])
}

func TestDebugModeIsStrict(t *testing.T) {
	reg := handlers()
	reg.Register("explode", failing(errors.New("nope")))
	graph, err := compiler.New(compiler.WithNodes(reg)).CompileBytes([]byte(failTemplate + "debug_mode: true\n"))
	require.NoError(t, err)
	eng, err := runtime.New(graph, state.New(graph.Schema, nil), runtime.WithRegistry(reg))
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestLifecycleHooks(t *testing.T) {
	var events []string
	record := func(ctx context.Context, e *domain.StateEvent) {
		events = append(events, string(e.Type)+":"+e.NodeID)
	}
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			events = append(events, "enter:"+e.NodeID)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			events = append(events, "leave:"+e.NodeID)
		},
		OnSuspend:   record,
		OnResume:    record,
		OnTerminate: record,
	}
	f := newFixture(t, askTemplate, runtime.WithLifecycleHooks(hooks), runtime.WithSessionID("s-1"))

	ctx := context.Background()
	_, err := f.engine.Run(ctx, nil)
	require.NoError(t, err)
	_, err = f.engine.Resume(ctx, "hi")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"enter:greet",
		"leave:greet",
		"suspend:ask_input",
		"resume:ask_input",
		"enter:ask",
		"leave:ask",
		"terminate:ask",
	}, events)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, askTemplate)
	ctx := context.Background()

	res, err := f.engine.Run(ctx, nil)
	require.NoError(t, err)
	require.True(t, res.Suspended())
	suspendedAt := f.manager.NextIndex()

	// a fresh process sees only the store
	m := state.New(f.graph.Schema, f.store)
	reg := handlers()
	calls := 0
	reg.Register("echo", func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		calls++
		return map[string]any{"output": "restored " + st["human_input"].(string)}, nil
	})
	eng, err := runtime.New(f.graph, m, runtime.WithRegistry(reg))
	require.NoError(t, err)

	res, err = eng.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingInput, res.Status)
	assert.Equal(t, "ask", res.Pending)
	assert.Equal(t, "stamped", res.Values["output"])
	assert.Equal(t, suspendedAt, m.NextIndex())

	res, err = eng.Resume(ctx, "later")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, "restored later", res.Values["output"])
	assert.Equal(t, 1, calls)
}

func TestRestoreWithoutCursor(t *testing.T) {
	f := newFixture(t, askTemplate)
	_, err := f.engine.Restore(context.Background())
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestPromptNodesUseClients(t *testing.T) {
	tmpl := `
name: describe
state_defs: [State, [photo, str], [caption, str]]
nodes:
  greet:
    type: prompt
    template: "Say hi to {human_input}"
    next: look
  look:
    type: prompt
    template: "Caption this"
    image_keys: [photo]
    sink: caption
    next: END
entry_point: greet
llm: talker
vlm: viewer
`
	graph, err := compiler.New().CompileBytes([]byte(tmpl))
	require.NoError(t, err)

	talker := clients.NewMock("hi there")
	viewer := clients.NewMock("a cat")
	factory := clients.NewFactory()
	factory.Set("talker", talker)
	factory.Set("viewer", viewer)

	eng, err := runtime.New(graph, state.New(graph.Schema, nil), runtime.WithClients(factory))
	require.NoError(t, err)

	res, err := eng.Run(context.Background(), map[string]any{"human_input": "Ana", "photo": "cat.png"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Values["output"])
	assert.Equal(t, "a cat", res.Values["caption"])

	require.Len(t, talker.Calls(), 1)
	assert.Equal(t, "Say hi to Ana", talker.Calls()[0][0].Content)
	require.Len(t, viewer.Calls(), 1)
	assert.Equal(t, []string{"cat.png"}, viewer.Calls()[0][0].Images)
}

func TestNewRejectsUnservedKinds(t *testing.T) {
	s := schema.MustNew(schema.Field{Name: "x", Type: schema.Int()})
	graph := &domain.Graph{
		Name:   "handmade",
		Entry:  "a",
		Order:  []string{"a"},
		Nodes:  map[string]*domain.NodeSpec{"a": {ID: "a", Type: "mystery", Next: domain.To(domain.Terminal)}},
		Schema: s,
	}
	_, err := runtime.New(graph, state.New(s, nil))
	var compileErr *domain.CompileError
	assert.ErrorAs(t, err, &compileErr)

	graph.Entry = "missing"
	_, err = runtime.New(graph, state.New(s, nil))
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, counterTemplate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStrictRejectsUndeclaredFields(t *testing.T) {
	typo := func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		return map[string]any{"outptu": "x"}, nil
	}
	reg := handlers()
	reg.Register("explode", typo)
	graph, err := compiler.New(compiler.WithNodes(reg)).CompileBytes([]byte(failTemplate))
	require.NoError(t, err)

	m := state.New(graph.Schema, memory.NewStore(), state.WithStrict(true))
	eng, err := runtime.New(graph, m, runtime.WithRegistry(reg), runtime.WithStrict(true))
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrUnknownField)
	assert.Equal(t, domain.StatusFailed, eng.Status())

	eng, _ = failFixture(t, typo)
	res, err := eng.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.NotContains(t, res.Values, "outptu")
}

// brokenStore fails every write after the first n.
type brokenStore struct {
	*memory.Store
	n int
}

func (s *brokenStore) Write(ctx context.Context, key string, data []byte) error {
	if s.n <= 0 {
		return errors.New("disk full")
	}
	s.n--
	return s.Store.Write(ctx, key, data)
}

func TestStoreFailureRecovers(t *testing.T) {
	reg := handlers()
	graph, err := compiler.New(compiler.WithNodes(reg)).CompileBytes([]byte(counterTemplate))
	require.NoError(t, err)
	store := &brokenStore{Store: memory.NewStore(), n: 2}
	eng, err := runtime.New(graph, state.New(graph.Schema, store), runtime.WithRegistry(reg))
	require.NoError(t, err)

	res, err := eng.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage(), "disk full")
	assert.Equal(t, 2, eng.Current()["counter"])
}

func TestInitializeFailureFollowsPolicy(t *testing.T) {
	f := newFixture(t, counterTemplate)
	_, err := f.engine.Run(context.Background(), map[string]any{"counter": "many"})
	var exhausted *domain.RecoveryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, domain.StatusFailed, f.engine.Status())

	f = newFixture(t, counterTemplate, runtime.WithStrict(true))
	_, err = f.engine.Run(context.Background(), map[string]any{"counter": "many"})
	var mismatch *domain.TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
}
