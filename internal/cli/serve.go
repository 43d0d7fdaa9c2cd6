package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/validator"
	httpAdapter "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/session"
)

// ShutdownTimeout bounds how long in-flight requests may take once the
// server is asked to stop.
const ShutdownTimeout = 5 * time.Second

// ServeOptions configures the serve command.
type ServeOptions struct {
	Template string
	Bindings map[string]any
	Config   config.Config
	Out      io.Writer
	// Ready, when set, is called with the bound address once the server
	// accepts connections.
	Ready func(addr string)
}

// Serve exposes the workflow over HTTP, one run per session, until ctx is
// cancelled or the process receives SIGINT or SIGTERM.
func Serve(parent context.Context, opts ServeOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	cfg := opts.Config

	logger, closer, err := createLogger(cfg, "arbor-serve")
	if err != nil {
		return err
	}
	defer closer.Close()

	graph, err := arbor.Compile(opts.Template, arbor.WithBindings(opts.Bindings), arbor.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := validator.ValidateGraph(graph); err != nil {
		logger.Warn("graph has problems", "workflow", graph.Name, "error", err)
	}

	sigCtx := NewSignalContext(parent)
	defer sigCtx.Cancel()

	backend, err := OpenStore(sigCtx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	metrics := observability.NewMetrics(nil)
	mgr := newSessionManager(cfg, graph, backend, logger, metrics.Hooks().Merge(observability.LogHooks(logger)))

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpAdapter.NewHandler(mgr, graph,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithMetrics(metrics.Handler()),
			httpAdapter.WithVersion(arbor.Version),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go func() {
		fmt.Fprintf(opts.Out, "Serving workflow '%s' on %s\n", graph.Name, ln.Addr())
		logger.Info("server started", "addr", ln.Addr().String(), "workflow", graph.Name, "store", cfg.Store)
		serverErrors <- srv.Serve(ln)
	}()
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-sigCtx.Done():
		logger.Info("shutting down", "signal", sigCtx.Signal())

		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown did not complete", "timeout", ShutdownTimeout, "error", err)
			if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}
		fmt.Fprintln(opts.Out, "Server stopped gracefully")
		return nil
	}
}

// newSessionManager runs graph, one workflow per session, over the opened
// backend. The backend locker, when present, guards sessions across
// processes.
func newSessionManager(cfg config.Config, graph *domain.Graph, backend *Backend, logger *slog.Logger, hooks domain.LifecycleHooks) *session.Manager {
	wfOpts := []arbor.Option{
		arbor.WithLogger(logger),
		arbor.WithHooks(hooks),
		arbor.WithClients(newClients(cfg)),
	}
	if cfg.Strict {
		wfOpts = append(wfOpts, arbor.WithStrict(true))
	}

	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithLockTTL(cfg.LockTTL),
		session.WithIdleTTL(cfg.IdleTTL),
	}
	if backend.Locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(backend.Locker))
	}
	return session.NewManager(backend.Store, arbor.SessionFactory(graph, wfOpts...), sessionOpts...)
}
