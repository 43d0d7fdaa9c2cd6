package domain

import (
	"reflect"
	"slices"
)

// StateDiff represents the changes between two snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// Index of the newer snapshot.
	Index int `json:"index"`

	// Node that produced the newer snapshot, if it changed.
	Node *string `json:"node,omitempty"`

	// Changed contains only changed or added fields. Fields that disappeared
	// are present with a nil value.
	Changed map[string]any `json:"changed,omitempty"`
}

// Fields lists the changed field names, sorted.
func (d *StateDiff) Fields() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Changed))
	for k := range d.Changed {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Diff calculates the difference between prev and next.
// If prev is nil, it returns a diff representing the entire next snapshot.
// It returns nil when nothing changed.
func Diff(prev, next *Snapshot) *StateDiff {
	if next == nil {
		return nil
	}

	diff := &StateDiff{Index: next.Index}
	if prev == nil || prev.Node != next.Node {
		diff.Node = &next.Node
	}
	diff.Changed = diffValues(prev, next)

	if diff.Node == nil && len(diff.Changed) == 0 {
		return nil
	}
	return diff
}

func diffValues(prev, next *Snapshot) map[string]any {
	delta := make(map[string]any)

	if prev == nil {
		for k, v := range next.Values {
			delta[k] = v
		}
		return delta
	}

	for k, v := range next.Values {
		old, exists := prev.Values[k]
		if !exists || !reflect.DeepEqual(old, v) {
			delta[k] = v
		}
	}
	for k := range prev.Values {
		if _, exists := next.Values[k]; !exists {
			delta[k] = nil
		}
	}
	return delta
}
