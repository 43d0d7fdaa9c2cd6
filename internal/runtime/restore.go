package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// Restore rebuilds the instance from the artifacts of an earlier process:
// the cursor says where the run stopped and the snapshot it names (or the
// checkpoint, when that snapshot is gone) supplies the values. A restored
// suspended run continues with Resume.
func (e *Engine) Restore(ctx context.Context) (*domain.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.state.LoadCursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}
	if cur.Workflow != "" && cur.Workflow != e.graph.Name {
		return nil, fmt.Errorf("cursor belongs to workflow %q, not %q", cur.Workflow, e.graph.Name)
	}
	if cur.Status == domain.StatusAwaitingInput && !e.graph.IsInterrupt(cur.Pending) {
		return nil, fmt.Errorf("cursor awaits input at %q, which is not an intervene point", cur.Pending)
	}

	var values map[string]any
	if snap, err := e.state.Load(ctx, cur.Index); err == nil {
		values = snap.Values
	} else {
		e.logger.WarnContext(ctx, "snapshot unavailable, using checkpoint", "index", cur.Index, "error", err)
		if values, err = e.state.LoadCheckpoint(ctx); err != nil {
			return nil, err
		}
	}

	snap := e.state.Resume(cur.Node, cur.Index, values)
	e.values = snap.Clone()
	e.status = cur.Status
	e.node = cur.Node
	e.pending = cur.Pending
	e.logger.InfoContext(ctx, "workflow restored", "status", cur.Status, "pending", cur.Pending)
	return e.result(), nil
}
