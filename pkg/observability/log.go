package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// LogHooks returns lifecycle hooks writing an audit line per event.
// Node traffic is logged at debug level, lifecycle changes at info and
// failures at error.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	node := func(ctx context.Context, e *domain.NodeEvent) {
		attrs := []any{"event", e.Type, "workflow", e.Workflow, "node", e.NodeID, "type", e.NodeType}
		if e.SessionID != "" {
			attrs = append(attrs, "session", e.SessionID)
		}
		if e.Type == domain.EventNodeLeave {
			attrs = append(attrs, "duration", e.Duration)
		}
		if e.Err != nil {
			logger.WarnContext(ctx, "node error", append(attrs, "error", e.Err)...)
			return
		}
		logger.DebugContext(ctx, "node event", attrs...)
	}
	state := func(level slog.Level) func(context.Context, *domain.StateEvent) {
		return func(ctx context.Context, e *domain.StateEvent) {
			attrs := []any{"event", e.Type, "workflow", e.Workflow, "node", e.NodeID, "status", e.Status, "index", e.Index}
			if e.SessionID != "" {
				attrs = append(attrs, "session", e.SessionID)
			}
			if e.Err != nil {
				attrs = append(attrs, "error", e.Err)
			}
			logger.Log(ctx, level, "lifecycle event", attrs...)
		}
	}
	return domain.LifecycleHooks{
		OnNodeEnter: node,
		OnNodeLeave: node,
		OnSuspend:   state(slog.LevelInfo),
		OnResume:    state(slog.LevelInfo),
		OnTerminate: state(slog.LevelInfo),
		OnFail:      state(slog.LevelError),
		OnSnapshot:  state(slog.LevelDebug),
		OnRecover:   state(slog.LevelWarn),
	}
}
