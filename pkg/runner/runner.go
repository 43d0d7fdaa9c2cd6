package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Runner handles the interaction loop of a workflow using provided IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler over
	// Stdin/Stdout is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// Headless suppresses system messages.
	Headless bool

	// Renderer is handed to the default TextHandler.
	Renderer ContentRenderer
}

// NewRunner creates a Runner configured by opts.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run starts wf with initial values and keeps feeding it input until it
// finishes. See Drive for how the loop ends.
func (r *Runner) Run(ctx context.Context, wf ports.Workflow, initial map[string]any) (*domain.Result, error) {
	res, err := wf.Run(ctx, initial)
	if err != nil {
		return nil, err
	}
	return r.Drive(ctx, wf, res)
}

// Drive continues from res, typically the result of a restored run. It
// returns when the run terminates or fails, or when input ends; in the last
// case the run stays suspended and the latest result is returned.
func (r *Runner) Drive(ctx context.Context, wf ports.Workflow, res *domain.Result) (*domain.Result, error) {
	handler := r.resolveHandler()

	for {
		if err := handler.Output(ctx, res); err != nil {
			return res, err
		}
		if res.Status != domain.StatusAwaitingInput {
			return res, nil
		}

		input, err := handler.Input(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.Logger.DebugContext(ctx, "input closed", "pending", res.Pending)
				r.system(ctx, handler, "input closed; the run stays suspended at "+res.Pending)
				return res, nil
			}
			return res, err
		}

		r.Logger.DebugContext(ctx, "resuming", "pending", res.Pending)
		next, err := wf.Resume(ctx, input)
		if err != nil {
			return res, err
		}
		res = next
	}
}

func (r *Runner) system(ctx context.Context, h IOHandler, msg string) {
	if r.Headless {
		return
	}
	if err := h.SystemOutput(ctx, msg); err != nil {
		r.Logger.DebugContext(ctx, "system output failed", "error", err)
	}
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	// Memoized so repeated runs share one input pump.
	r.Handler = NewTextHandler(os.Stdin, os.Stdout, WithTextHandlerRenderer(r.Renderer))
	return r.Handler
}
