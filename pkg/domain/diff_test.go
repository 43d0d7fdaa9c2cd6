package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	start := "start"

	tests := []struct {
		name     string
		prev     *Snapshot
		next     *Snapshot
		wantDiff *StateDiff
	}{
		{
			name: "initial snapshot",
			next: &Snapshot{Index: 0, Node: "start", Values: map[string]any{"a": 1}},
			wantDiff: &StateDiff{
				Index:   0,
				Node:    &start,
				Changed: map[string]any{"a": 1},
			},
		},
		{
			name:     "no changes",
			prev:     &Snapshot{Index: 1, Node: "start", Values: map[string]any{"a": 1}},
			next:     &Snapshot{Index: 2, Node: "start", Values: map[string]any{"a": 1}},
			wantDiff: nil,
		},
		{
			name: "changed, added and removed fields",
			prev: &Snapshot{Index: 1, Node: "start", Values: map[string]any{"a": 1, "gone": true, "same": "x"}},
			next: &Snapshot{Index: 2, Node: "start", Values: map[string]any{"a": 2, "new": []any{1}, "same": "x"}},
			wantDiff: &StateDiff{
				Index:   2,
				Changed: map[string]any{"a": 2, "new": []any{1}, "gone": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantDiff, Diff(tt.prev, tt.next))
		})
	}
}

func TestDiff_Fields(t *testing.T) {
	d := Diff(
		&Snapshot{Node: "a", Values: map[string]any{"x": 1, "y": 1}},
		&Snapshot{Node: "b", Values: map[string]any{"x": 2, "y": 2}},
	)
	require.NotNil(t, d)
	assert.Equal(t, []string{"x", "y"}, d.Fields())
	assert.Equal(t, "b", *d.Node)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":0,"node":"b","changed":{"x":2,"y":2}}`, string(data))
}

func TestCloneValues(t *testing.T) {
	orig := map[string]any{
		"list":   []any{map[string]any{"k": "v"}},
		"nested": map[string]any{"inner": []any{1}},
	}
	clone := CloneValues(orig)
	clone["list"].([]any)[0].(map[string]any)["k"] = "changed"
	clone["nested"].(map[string]any)["inner"].([]any)[0] = 2

	assert.Equal(t, "v", orig["list"].([]any)[0].(map[string]any)["k"])
	assert.Equal(t, 1, orig["nested"].(map[string]any)["inner"].([]any)[0])
}
