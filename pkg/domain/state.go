package domain

import (
	"maps"
	"time"
)

// Status is the lifecycle state of a workflow run.
type Status string

const (
	StatusRunning       Status = "RUNNING"
	StatusAwaitingInput Status = "AWAITING_INPUT"
	StatusTerminated    Status = "TERMINATED"
	StatusFailed        Status = "FAILED"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusTerminated || s == StatusFailed
}

// Snapshot is an immutable, indexed copy of every state field.
type Snapshot struct {
	Index int `json:"index"`
	// Node is the node whose execution produced this snapshot. Input merged
	// on resume is attributed to the synthetic input node that awaited it.
	Node      string         `json:"node,omitempty"`
	Values    map[string]any `json:"values"`
	CreatedAt time.Time      `json:"created_at"`
}

// Clone returns a deep copy of the snapshot values.
func (s *Snapshot) Clone() map[string]any {
	return CloneValues(s.Values)
}

// Result is what a run or resume hands back to the caller.
type Result struct {
	Status Status         `json:"status"`
	Values map[string]any `json:"values"`
	// Pending is the intervene node waiting for input when Status is
	// AWAITING_INPUT.
	Pending string `json:"pending,omitempty"`
	// Node is the last node that executed.
	Node string `json:"node,omitempty"`
}

// Suspended reports whether the run is waiting for input.
func (r *Result) Suspended() bool {
	return r.Status == StatusAwaitingInput
}

// ErrorMessage returns the captured failure of a non-strict run, if any.
func (r *Result) ErrorMessage() string {
	if r.Status != StatusFailed {
		return ""
	}
	msg, _ := r.Values["error"].(string)
	return msg
}

// CloneValues deep copies nested maps and slices so callers and handlers
// cannot alias recorded state.
func CloneValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep copies one value the way CloneValues does.
func CloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneValues(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	case map[string]string:
		return maps.Clone(x)
	default:
		return v
	}
}
