package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/internal/state"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/session"
)

const template = `
name: greeter
state_defs: [State, [visits, int]]
nodes:
  greet:
    type: visit
    next: END
entry_point: greet
intervene_before: [greet]
`

func factory(t *testing.T) session.Factory {
	t.Helper()
	reg := registry.NewRegistry()
	reg.Register("visit", func(ctx context.Context, st map[string]any, _ ports.ModelClient, _ map[string]any) (map[string]any, error) {
		return map[string]any{
			"visits": st["visits"].(int) + 1,
			"output": "hello " + st["human_input"].(string),
		}, nil
	})
	graph, err := compiler.New(compiler.WithNodes(reg)).CompileBytes([]byte(template))
	require.NoError(t, err)

	return func(id string, store ports.ArtifactStore) (session.Instance, error) {
		m := state.New(graph.Schema, store)
		return runtime.New(graph, m, runtime.WithRegistry(reg), runtime.WithSessionID(id))
	}
}

func TestManager_StartResume(t *testing.T) {
	store := memory.NewStore()
	mgr := session.NewManager(store, factory(t))
	ctx := context.Background()

	id, res, err := mgr.Start(ctx, "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, domain.StatusAwaitingInput, res.Status)

	res, err = mgr.Resume(ctx, id, "ana")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, "hello ana", res.Values["output"])

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestManager_Isolation(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), factory(t))
	ctx := context.Background()

	_, _, err := mgr.Start(ctx, "a", map[string]any{"visits": 10})
	require.NoError(t, err)
	_, _, err = mgr.Start(ctx, "b", nil)
	require.NoError(t, err)

	resA, err := mgr.Resume(ctx, "a", "x")
	require.NoError(t, err)
	resB, err := mgr.Resume(ctx, "b", "y")
	require.NoError(t, err)

	assert.Equal(t, 11, resA.Values["visits"])
	assert.Equal(t, 1, resB.Values["visits"])
}

func TestManager_Rehydrate(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	first := session.NewManager(store, factory(t))
	_, _, err := first.Start(ctx, "s1", nil)
	require.NoError(t, err)

	// a second process sharing the store
	second := session.NewManager(store, factory(t))
	assert.Zero(t, second.Cached())

	got, err := second.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingInput, got.Status)
	assert.Equal(t, "greet", got.Pending)

	res, err := second.Resume(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "hello bob", res.Values["output"])
	assert.Equal(t, 1, second.Cached())
}

func TestManager_NotFound(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), factory(t))

	_, err := mgr.Resume(context.Background(), "ghost", "hi")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_Delete(t *testing.T) {
	store := memory.NewStore()
	mgr := session.NewManager(store, factory(t))
	ctx := context.Background()

	_, _, err := mgr.Start(ctx, "gone", nil)
	require.NoError(t, err)
	_, _, err = mgr.Start(ctx, "kept", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, "gone"))

	keys, err := store.List(ctx, "gone/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = mgr.Get(ctx, "gone")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, ids)
}

func TestManager_ConcurrentResume(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), factory(t))
	ctx := context.Background()

	_, _, err := mgr.Start(ctx, "race", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := mgr.Resume(ctx, "race", fmt.Sprint(i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, finished int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrFinished):
			finished++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one resume may drive the suspended run")
	assert.Equal(t, 9, finished)
}

func TestManager_IdleEviction(t *testing.T) {
	store := memory.NewStore()
	mgr := session.NewManager(store, factory(t), session.WithIdleTTL(20*time.Millisecond))
	ctx := context.Background()

	_, _, err := mgr.Start(ctx, "idle", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return mgr.Cached() == 0 }, time.Second, 10*time.Millisecond)

	res, err := mgr.Resume(ctx, "idle", "back")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
}

func TestManager_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	store := redis.NewFromClient(client)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	a := session.NewManager(store, factory(t), session.WithLocker(locker))
	b := session.NewManager(store, factory(t), session.WithLocker(locker))

	_, _, err := a.Start(ctx, "shared", nil)
	require.NoError(t, err)

	res, err := b.Resume(ctx, "shared", "from b")
	require.NoError(t, err)
	assert.Equal(t, "hello from b", res.Values["output"])

	// a must not drive its stale cached copy
	_, err = a.Resume(ctx, "shared", "from a")
	assert.ErrorIs(t, err, domain.ErrFinished)
}
