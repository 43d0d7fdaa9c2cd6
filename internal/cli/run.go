package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/runner"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	Template  string
	Vars      map[string]any
	Bindings  map[string]any
	SessionID string
	Headless  bool
	JSON      bool
	// Fresh discards what the session recorded before starting.
	Fresh bool
	// Markdown renders assistant output with glamour.
	Markdown bool
	Config   config.Config

	In  io.Reader
	Out io.Writer
}

func (o *RunOptions) quiet() bool {
	return o.JSON || o.Headless
}

// RunSession executes a workflow in the terminal. With a session ID the
// run is recorded in the configured store: a suspended run of that session
// is picked up where it stopped instead of starting over. An interrupted
// run is not an error.
func RunSession(parent context.Context, opts RunOptions) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	logger, closer, err := runLogger(opts.Config)
	if err != nil {
		return err
	}
	defer closer.Close()

	sigCtx := NewSignalContext(parent)
	defer sigCtx.Cancel()

	backend, err := OpenStore(sigCtx, opts.Config)
	if err != nil {
		return err
	}
	defer backend.Close()

	if opts.Fresh && opts.SessionID != "" {
		if err := clearSession(sigCtx, backend.Store, opts.SessionID); err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
	}

	wfOpts := []arbor.Option{
		arbor.WithLogger(logger),
		arbor.WithStore(backend.Store),
		arbor.WithBindings(opts.Bindings),
		arbor.WithHooks(observability.LogHooks(logger)),
		arbor.WithClients(newClients(opts.Config)),
	}
	if opts.SessionID != "" {
		wfOpts = append(wfOpts, arbor.WithSessionID(opts.SessionID))
	}
	if opts.Config.Strict {
		wfOpts = append(wfOpts, arbor.WithStrict(true))
	}
	wf, err := arbor.Load(opts.Template, wfOpts...)
	if err != nil {
		return err
	}
	defer wf.Close()

	if !opts.quiet() {
		tui.PrintBanner(opts.Out, arbor.Version)
	}

	r, err := newRunner(opts, logger)
	if err != nil {
		return err
	}

	res, runErr := start(sigCtx, r, wf, opts)
	if sigCtx.Err() != nil && runErr == nil {
		runErr = sigCtx.Err()
	}
	logCompletion(opts, res, runErr, sigCtx.Signal())
	return handleExecutionError(runErr)
}

// start restores the session when it has a suspended run and starts a new
// run otherwise.
func start(ctx context.Context, r *runner.Runner, wf *arbor.Workflow, opts RunOptions) (*domain.Result, error) {
	if opts.SessionID == "" {
		return r.Run(ctx, wf, opts.Vars)
	}

	res, err := wf.Restore(ctx)
	switch {
	case errors.Is(err, domain.ErrArtifactNotFound):
		if !opts.quiet() {
			printSystemMessage(opts.Out, "Session '%s' created.", opts.SessionID)
		}
		return r.Run(ctx, wf, opts.Vars)
	case err != nil:
		return nil, fmt.Errorf("restore session %q: %w", opts.SessionID, err)
	case res.Status != domain.StatusAwaitingInput:
		return res, fmt.Errorf("session %q already finished with status %s; use --fresh to start over", opts.SessionID, res.Status)
	}
	if !opts.quiet() {
		printSystemMessage(opts.Out, "Resuming session '%s' at '%s'.", opts.SessionID, res.Pending)
	}
	return r.Drive(ctx, wf, res)
}

func newRunner(opts RunOptions, logger *slog.Logger) (*runner.Runner, error) {
	runnerOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithHeadless(opts.Headless),
	}
	if opts.JSON {
		return runner.NewRunner(append(runnerOpts, runner.WithInputHandler(runner.NewJSONHandler(opts.In, opts.Out)))...), nil
	}

	var textOpts []runner.TextHandlerOption
	if opts.Markdown && !opts.Headless {
		render, err := tui.NewRenderer(0)
		if err != nil {
			return nil, err
		}
		textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
	}
	handler := runner.NewTextHandler(opts.In, opts.Out, textOpts...)
	return runner.NewRunner(append(runnerOpts, runner.WithInputHandler(handler))...), nil
}

// runLogger keeps the terminal clean: without a log directory only debug
// logging reaches stderr.
func runLogger(cfg config.Config) (*slog.Logger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LogDir == "" && level > slog.LevelDebug {
		return logging.NewNop(), io.NopCloser(nil), nil
	}
	return createLogger(cfg, "arbor")
}

func clearSession(ctx context.Context, store ports.ArtifactStore, sessionID string) error {
	ns := ports.Namespace(store, sessionID)
	keys, err := ns.List(ctx, "")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := ns.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func handleExecutionError(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logCompletion(opts RunOptions, res *domain.Result, err error, sig os.Signal) {
	if opts.quiet() {
		return
	}
	node := ""
	if res != nil {
		node = res.Node
		if res.Pending != "" {
			node = res.Pending
		}
	}
	switch {
	case errors.Is(err, context.Canceled) && sig == os.Interrupt:
		fmt.Fprintln(opts.Out, "[CTRL+C]")
		printSystemMessage(opts.Out, "Interrupted at '%s'.", node)
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(opts.Out)
		printSystemMessage(opts.Out, "Terminated at '%s'.", node)
	case err == nil && res != nil && res.Status.Finished():
		printSystemMessage(opts.Out, "Finished at '%s'.", node)
	}
}
