package registry

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(key string) Handler {
	return func(_ context.Context, state map[string]any, _ ports.ModelClient, opts map[string]any) (map[string]any, error) {
		return map[string]any{key: opts["value"]}, nil
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("b", echo("out"))
	r.Register("a", echo("out"))

	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))
	assert.Equal(t, []string{"a", "b"}, r.Names())

	out, err := r.Execute(context.Background(), "a", nil, nil, map[string]any{"value": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"out": 1}, out)

	_, err = r.Execute(context.Background(), "c", nil, nil, nil)
	assert.ErrorContains(t, err, "node type not found")
}

func TestRegistry_Merge(t *testing.T) {
	base := NewRegistry()
	base.Register("shared", echo("base"))
	base.Register("only_base", echo("base"))

	custom := NewRegistry()
	custom.Register("shared", echo("custom"))

	merged := base.Merge(custom)
	assert.Equal(t, []string{"only_base", "shared"}, merged.Names())

	out, err := merged.Execute(context.Background(), "shared", nil, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "custom")

	var nilRegistry *Registry
	assert.False(t, nilRegistry.Has("x"))
}
