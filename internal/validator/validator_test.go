package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/schema"
)

func build(t *testing.T, add func(b *dsl.Builder)) *domain.Graph {
	t.Helper()
	b := dsl.New("lint").Bundle(schema.BaseState)
	add(b)
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestValidateGraph(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		g := build(t, func(b *dsl.Builder) {
			b.Add("start").Prompt("hi").Sink("output").Go("next")
			b.Add("next").Prompt("bye").Sink("output").Terminal()
		})
		assert.NoError(t, ValidateGraph(g))
	})

	t.Run("loop with an intervene point can exit", func(t *testing.T) {
		g := build(t, func(b *dsl.Builder) {
			b.Add("chat").Prompt("{human_input}").Sink("output").Intervene().Go("chat")
		})
		assert.NoError(t, ValidateGraph(g))
	})

	t.Run("findings", func(t *testing.T) {
		g := build(t, func(b *dsl.Builder) {
			b.Add("start").Prompt("hi").Sink("output").Branch("output == 'x'", "spin", "END")
			b.Add("spin").Prompt("again").Sink("output").Go("spin")
			b.Add("orphan").Prompt("never").Sink("output").Terminal()
		})

		err := ValidateGraph(g)
		require.Error(t, err)
		var report *Report
		require.ErrorAs(t, err, &report)
		assert.Equal(t, []string{"orphan"}, report.Unreachable)
		assert.Equal(t, []string{"spin"}, report.Trapped)
		assert.Contains(t, err.Error(), "found 2 problems")
	})
}
