package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/arbor/internal/state"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Fields the engine maintains when the state declares them.
const (
	currentNodeField  = "current_node_type"
	previousNodeField = "previous_node_type"
)

// step executes one real node: handler, merge, snapshot, route.
func (e *Engine) step(ctx context.Context, spec *domain.NodeSpec) (string, error) {
	start := time.Now()
	e.emitNode(ctx, e.hooks.OnNodeEnter, domain.EventNodeEnter, spec, 0, nil)
	e.logger.DebugContext(ctx, "entering node", "node", spec.ID, "type", spec.Type)

	next, err := e.execute(ctx, spec)
	e.emitNode(ctx, e.hooks.OnNodeLeave, domain.EventNodeLeave, spec, time.Since(start), err)
	return next, err
}

func (e *Engine) execute(ctx context.Context, spec *domain.NodeSpec) (string, error) {
	update, err := e.invoke(ctx, spec, e.client(spec))
	if err != nil {
		return "", &domain.RuntimeNodeError{Node: spec.ID, Err: err}
	}

	partial := make(map[string]any, len(update)+2)
	for k, v := range update {
		partial[k] = v
	}
	if e.graph.Schema.Has(currentNodeField) {
		partial[currentNodeField] = spec.ID
	}
	if e.graph.Schema.Has(previousNodeField) {
		if prev, ok := e.values[currentNodeField].(string); ok {
			partial[previousNodeField] = prev
		}
	}

	values, err := e.state.Update(e.values, partial)
	if err != nil {
		return "", err
	}
	snap, err := e.state.Snapshot(ctx, spec.ID, values)
	if err != nil {
		return "", err
	}
	e.values = values
	e.node = spec.ID
	e.emitState(ctx, e.hooks.OnSnapshot, domain.EventSnapshot, spec.ID, snap.Index, nil)

	return e.route(spec)
}

// invoke calls the node handler on a private copy of the state. A panicking
// handler fails the node like a returned error.
func (e *Engine) invoke(ctx context.Context, spec *domain.NodeSpec, client ports.ModelClient) (update map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return e.handlers[spec.ID](ctx, domain.CloneValues(e.values), client, domain.CloneValues(spec.Kwargs))
}

// client returns the vision client for nodes reading images and the
// language client otherwise.
func (e *Engine) client(spec *domain.NodeSpec) ports.ModelClient {
	model := e.graph.LLM
	if spec.UsesVision() && e.graph.VLM != "" {
		model = e.graph.VLM
	}
	if model == "" {
		model = domain.DefaultLLM
	}
	return e.clients.Client(model)
}

// route picks the next node. Conditions see the state after the node's
// update.
func (e *Engine) route(spec *domain.NodeSpec) (string, error) {
	if !spec.Next.IsConditional() {
		return spec.Next.Target, nil
	}
	ok, err := e.programs[spec.ID].Eval(e.values)
	if err != nil {
		return "", &domain.RuntimeNodeError{Node: spec.ID, Err: fmt.Errorf("condition %q: %w", spec.Next.Condition, err)}
	}
	if ok {
		return spec.Next.Then, nil
	}
	return spec.Next.Else, nil
}

// suspend parks the run at a synthetic input node.
func (e *Engine) suspend(ctx context.Context, spec *domain.NodeSpec) (*domain.Result, error) {
	snap, err := e.state.Snapshot(ctx, spec.ID, e.values)
	if err != nil {
		return e.fail(ctx, spec.ID, err)
	}
	if err := e.state.Checkpoint(ctx, snap); err != nil {
		return e.fail(ctx, spec.ID, err)
	}

	e.status = domain.StatusAwaitingInput
	e.pending = spec.Guards
	if err := e.saveCursor(ctx); err != nil {
		return e.fail(ctx, spec.ID, err)
	}

	e.logger.InfoContext(ctx, "awaiting input", "node", spec.Guards)
	e.emitState(ctx, e.hooks.OnSuspend, domain.EventSuspend, spec.ID, snap.Index, nil)
	return e.result(), nil
}

func (e *Engine) terminate(ctx context.Context) (*domain.Result, error) {
	e.status = domain.StatusTerminated
	e.pending = ""
	if err := e.state.Checkpoint(ctx, e.state.Latest()); err != nil {
		e.logger.ErrorContext(ctx, "checkpoint failed", "error", err)
	}
	if err := e.saveCursor(ctx); err != nil {
		e.logger.ErrorContext(ctx, "cursor write failed", "error", err)
	}

	e.logger.InfoContext(ctx, "workflow terminated", "node", e.node)
	e.emitState(ctx, e.hooks.OnTerminate, domain.EventTerminate, e.node, e.lastIndex(), nil)
	return e.result(), nil
}

// fail applies the failure policy. Strict runs hand the error back as is.
// Otherwise the last valid state is recovered and the run ends with an
// error-bearing result; only a failed recovery reaches the caller.
func (e *Engine) fail(ctx context.Context, node string, cause error) (*domain.Result, error) {
	e.status = domain.StatusFailed
	e.pending = ""
	e.logger.ErrorContext(ctx, "workflow failed", "node", node, "error", cause)
	e.emitState(ctx, e.hooks.OnFail, domain.EventFail, node, e.lastIndex(), cause)

	var exhausted *domain.RecoveryExhaustedError
	if e.strict || errors.As(cause, &exhausted) {
		e.writeCursor(ctx)
		return nil, cause
	}

	snap, err := e.state.Recover(ctx)
	if err != nil {
		e.writeCursor(ctx)
		return nil, err
	}
	e.values = snap.Clone()
	e.emitState(ctx, e.hooks.OnRecover, domain.EventRecover, node, snap.Index, nil)
	e.writeCursor(ctx)

	return &domain.Result{
		Status: domain.StatusFailed,
		Values: map[string]any{"error": cause.Error()},
		Node:   node,
	}, nil
}

func (e *Engine) isExit(input string) bool {
	lower := strings.ToLower(input)
	for _, cmd := range e.exitCommands {
		if cmd != "" && strings.Contains(lower, strings.ToLower(cmd)) {
			return true
		}
	}
	return false
}

func (e *Engine) lastIndex() int {
	if s := e.state.Latest(); s != nil {
		return s.Index
	}
	return -1
}

func (e *Engine) saveCursor(ctx context.Context) error {
	return e.state.SaveCursor(ctx, state.Cursor{
		Workflow: e.graph.Name,
		Status:   e.status,
		Node:     e.node,
		Pending:  e.pending,
		Index:    e.lastIndex(),
	})
}

// writeCursor records the cursor on paths that are already failing.
func (e *Engine) writeCursor(ctx context.Context) {
	if err := e.saveCursor(ctx); err != nil {
		e.logger.ErrorContext(ctx, "cursor write failed", "error", err)
	}
}

func (e *Engine) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		Type:      t,
		SessionID: e.sessionID,
		Workflow:  e.graph.Name,
	}
}

func (e *Engine) emitNode(ctx context.Context, hook func(context.Context, *domain.NodeEvent), t domain.EventType, spec *domain.NodeSpec, d time.Duration, err error) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.NodeEvent{
		EventBase: e.base(t),
		NodeID:    spec.ID,
		NodeType:  spec.Type,
		Duration:  d,
		Err:       err,
	})
}

func (e *Engine) emitState(ctx context.Context, hook func(context.Context, *domain.StateEvent), t domain.EventType, node string, index int, err error) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.StateEvent{
		EventBase: e.base(t),
		NodeID:    node,
		Status:    e.status,
		Index:     index,
		Err:       err,
	})
}
