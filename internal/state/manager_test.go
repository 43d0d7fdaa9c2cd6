package state

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
)

func testSchema() *schema.Schema {
	message := schema.Map(schema.String(), schema.String())
	return schema.MustNew(
		schema.Field{Name: "count", Type: schema.Int()},
		schema.Field{Name: "title", Type: schema.String()},
		schema.Field{Name: "ratio", Type: schema.Float()},
		schema.Field{Name: "tags", Type: schema.List(schema.String())},
		schema.Field{Name: "meta", Type: schema.Map(schema.String(), schema.Any())},
		schema.Field{Name: "human_input", Type: schema.String()},
		schema.Field{Name: "messages", Type: schema.List(message)},
	)
}

func TestMaterializeDefaults(t *testing.T) {
	values := MaterializeDefaults(testSchema())
	assert.Equal(t, map[string]any{
		"count":       0,
		"title":       "",
		"ratio":       0.0,
		"tags":        []any{},
		"meta":        map[string]any{},
		"human_input": "",
		"messages":    []any{},
	}, values)
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := New(testSchema(), store)

	snap, err := m.Initialize(ctx, map[string]any{"count": 3, "title": nil})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, 3, snap.Values["count"])
	assert.Equal(t, "", snap.Values["title"], "nil keeps the default")

	_, err = store.Read(ctx, "state_0")
	assert.NoError(t, err)
}

func TestUpdate(t *testing.T) {
	m := New(testSchema(), nil)
	current := MaterializeDefaults(testSchema())

	next, err := m.Update(current, map[string]any{
		"count": 2,
		"tags":  []string{"a", "b"},
		"ratio": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, next["count"])
	assert.Equal(t, []any{"a", "b"}, next["tags"])
	assert.Equal(t, 1.0, next["ratio"])
	assert.Equal(t, 0, current["count"], "input map must not change")
}

func TestUpdateNestedMerge(t *testing.T) {
	m := New(testSchema(), nil)
	current := MaterializeDefaults(testSchema())
	current["meta"] = map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": "keep"}

	next, err := m.Update(current, map[string]any{
		"meta": map[string]any{"a": map[string]any{"y": 3, "z": 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"x": 1, "y": 3, "z": 4},
		"b": "keep",
	}, next["meta"])
	assert.Equal(t, 2, current["meta"].(map[string]any)["a"].(map[string]any)["y"])
}

func TestUpdateIsAtomic(t *testing.T) {
	m := New(testSchema(), nil)
	current := MaterializeDefaults(testSchema())

	next, err := m.Update(current, map[string]any{
		"count": 5,
		"title": 42,
	})
	assert.Nil(t, next)
	var tm *domain.TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, []string{"title"}, tm.Fields)
	assert.Equal(t, 0, current["count"])
}

func TestUpdateUnknownFields(t *testing.T) {
	current := MaterializeDefaults(testSchema())

	lenient := New(testSchema(), nil)
	next, err := lenient.Update(current, map[string]any{"count": 1, "bogus": true})
	require.NoError(t, err)
	assert.NotContains(t, next, "bogus")
	assert.Equal(t, 1, next["count"])

	strict := New(testSchema(), nil, WithStrict(true))
	_, err = strict.Update(current, map[string]any{"bogus": true})
	assert.ErrorIs(t, err, domain.ErrUnknownField)
}

func TestApplyInput(t *testing.T) {
	m := New(testSchema(), nil)
	current := MaterializeDefaults(testSchema())
	current["messages"] = []any{map[string]any{"role": "assistant", "content": "hi"}}

	next, err := m.ApplyInput(current, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", next["human_input"])
	assert.Equal(t, []any{
		map[string]any{"role": "assistant", "content": "hi"},
		map[string]any{"role": "user", "content": "hello"},
	}, next["messages"])
	assert.Len(t, current["messages"], 1)

	bare := New(schema.MustNew(schema.Field{Name: "count", Type: schema.Int()}), nil)
	out, err := bare.ApplyInput(map[string]any{"count": 1}, "ignored")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 1}, out)
}

func TestHistoryWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := New(testSchema(), store, WithMaxHistory(2))

	values := MaterializeDefaults(testSchema())
	for i := 0; i < 5; i++ {
		var err error
		values, err = m.Update(values, map[string]any{"count": i})
		require.NoError(t, err)
		_, err = m.Snapshot(ctx, fmt.Sprintf("n%d", i), values)
		require.NoError(t, err)
	}

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].Index)
	assert.Equal(t, 4, history[1].Index)
	assert.Equal(t, 5, m.NextIndex())
	assert.Equal(t, "n4", m.Latest().Node)

	// Evicted snapshots are still loadable from their artifacts.
	old, err := m.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, old.Values["count"])

	recent, err := m.Load(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "n4", recent.Node)

	_, err = m.Load(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	s := testSchema()
	m := New(s, store, WithMaxHistory(1))

	values, err := m.Update(MaterializeDefaults(s), map[string]any{
		"count":    7,
		"ratio":    2.0,
		"tags":     []any{"x"},
		"meta":     map[string]any{"k": "v"},
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
	})
	require.NoError(t, err)
	_, err = m.Snapshot(ctx, "a", values)
	require.NoError(t, err)
	_, err = m.Snapshot(ctx, "b", values)
	require.NoError(t, err)

	loaded, err := m.Load(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, values, loaded.Values)
}

func TestLoadRejectsIncompleteArtifact(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := New(testSchema(), store)

	require.NoError(t, store.Write(ctx, "state_3", []byte(`{"count": 1}`)))
	_, err := m.Load(ctx, 3)
	assert.Error(t, err)
}

func TestPersistenceDisabled(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := New(testSchema(), store, WithPersistence(false))

	snap, err := m.Initialize(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	require.NoError(t, m.Checkpoint(ctx, snap))
	_, err = store.Read(ctx, CheckpointKey)
	assert.NoError(t, err, "checkpoints are written even without per-snapshot artifacts")
}

func TestRecover(t *testing.T) {
	ctx := context.Background()

	t.Run("from history", func(t *testing.T) {
		m := New(testSchema(), memory.NewStore())
		_, err := m.Initialize(ctx, map[string]any{"count": 1})
		require.NoError(t, err)

		snap, err := m.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Values["count"])
		assert.Equal(t, 1, snap.Index, "recovered state is recorded again")
	})

	t.Run("skips corrupt snapshots", func(t *testing.T) {
		m := New(testSchema(), nil)
		_, err := m.Initialize(ctx, map[string]any{"count": 1})
		require.NoError(t, err)
		_, err = m.Snapshot(ctx, "bad", map[string]any{"count": 2})
		require.NoError(t, err)

		snap, err := m.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Values["count"])
	})

	t.Run("from checkpoint", func(t *testing.T) {
		store := memory.NewStore()
		m := New(testSchema(), store)
		first, err := m.Initialize(ctx, map[string]any{"count": 9})
		require.NoError(t, err)
		require.NoError(t, m.Checkpoint(ctx, first))

		for i := 0; i < 3; i++ {
			_, err = m.Snapshot(ctx, "bad", map[string]any{})
			require.NoError(t, err)
		}
		snap, err := m.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 9, snap.Values["count"])
	})

	t.Run("exhausted", func(t *testing.T) {
		m := New(testSchema(), memory.NewStore())
		_, err := m.Snapshot(ctx, "bad", map[string]any{})
		require.NoError(t, err)

		_, err = m.Recover(ctx)
		var re *domain.RecoveryExhaustedError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, []string{"state_0", CheckpointKey}, re.Tried)
		assert.True(t, errors.Is(err, domain.ErrArtifactNotFound))
	})
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	m := New(testSchema(), memory.NewStore())

	_, err := m.LoadCursor(ctx)
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	want := Cursor{Workflow: "w", Status: domain.StatusAwaitingInput, Node: "a", Pending: "b", Index: 4}
	require.NoError(t, m.SaveCursor(ctx, want))
	got, err := m.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestResumeSeedsNumbering(t *testing.T) {
	m := New(testSchema(), nil)
	values := MaterializeDefaults(testSchema())
	snap := m.Resume("b_input", 6, values)
	assert.Equal(t, 6, snap.Index)
	assert.Equal(t, 7, m.NextIndex())

	next, err := m.Snapshot(context.Background(), "b", values)
	require.NoError(t, err)
	assert.Equal(t, 7, next.Index)
}

func TestSnapshotIndex(t *testing.T) {
	n, ok := SnapshotIndex("state_12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = SnapshotIndex("checkpoint")
	assert.False(t, ok)
	_, ok = SnapshotIndex("state_x")
	assert.False(t, ok)
}

type readOnlyStore struct{ *memory.Store }

func (readOnlyStore) Write(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestRecoverWithFailingStore(t *testing.T) {
	ctx := context.Background()
	m := New(testSchema(), readOnlyStore{memory.NewStore()})

	_, err := m.Initialize(ctx, map[string]any{"count": 4})
	require.Error(t, err)

	snap, err := m.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Values["count"])
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, 2, m.NextIndex())
}
