package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter EventType = "node_enter"
	EventNodeLeave EventType = "node_leave"
	EventSuspend   EventType = "suspend"
	EventResume    EventType = "resume"
	EventTerminate EventType = "terminate"
	EventFail      EventType = "fail"
	EventSnapshot  EventType = "snapshot"
	EventRecover   EventType = "recover"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Workflow  string    `json:"workflow"`
}

// NodeEvent represents entry into or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	NodeType string        `json:"node_type"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// StateEvent represents a change in the run lifecycle or its history.
type StateEvent struct {
	EventBase
	NodeID string `json:"node_id,omitempty"`
	Status Status `json:"status"`
	Index  int    `json:"index"`
	Err    error  `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability. Every hook is
// optional and runs synchronously on the driving goroutine.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
	OnSuspend   func(context.Context, *StateEvent)
	OnResume    func(context.Context, *StateEvent)
	OnTerminate func(context.Context, *StateEvent)
	OnFail      func(context.Context, *StateEvent)
	OnSnapshot  func(context.Context, *StateEvent)
	OnRecover   func(context.Context, *StateEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter: chainNode(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave: chainNode(h.OnNodeLeave, other.OnNodeLeave),
		OnSuspend:   chainState(h.OnSuspend, other.OnSuspend),
		OnResume:    chainState(h.OnResume, other.OnResume),
		OnTerminate: chainState(h.OnTerminate, other.OnTerminate),
		OnFail:      chainState(h.OnFail, other.OnFail),
		OnSnapshot:  chainState(h.OnSnapshot, other.OnSnapshot),
		OnRecover:   chainState(h.OnRecover, other.OnRecover),
	}
}

func chainNode(a, b func(context.Context, *NodeEvent)) func(context.Context, *NodeEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *NodeEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainState(a, b func(context.Context, *StateEvent)) func(context.Context, *StateEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *StateEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
