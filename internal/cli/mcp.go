package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/validator"
	mcpAdapter "github.com/aretw0/arbor/pkg/adapters/mcp"
	"github.com/aretw0/arbor/pkg/observability"
)

// MCPOptions configures the mcp command.
type MCPOptions struct {
	Template  string
	Bindings  map[string]any
	Config    config.Config
	Transport string // stdio or sse
	In        io.Reader
	Out       io.Writer
}

// ServeMCP exposes the workflow as a Model Context Protocol server. Over
// stdio the protocol owns In and Out, so nothing else is printed there.
func ServeMCP(parent context.Context, opts MCPOptions) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Transport == "" {
		opts.Transport = "stdio"
	}
	if opts.Transport != "stdio" && opts.Transport != "sse" {
		return fmt.Errorf("unknown transport %q, want stdio or sse", opts.Transport)
	}
	cfg := opts.Config

	logger, closer, err := createLogger(cfg, "arbor-mcp")
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

	mgr := newSessionManager(cfg, graph, backend, logger, observability.LogHooks(logger))
	srv := mcpAdapter.NewServer(mgr, graph,
		mcpAdapter.WithLogger(logger),
		mcpAdapter.WithVersion(arbor.Version),
	)

	logger.Info("mcp server started", "transport", opts.Transport, "workflow", graph.Name, "store", cfg.Store)
	if opts.Transport == "sse" {
		fmt.Fprintf(opts.Out, "Serving workflow '%s' over MCP (SSE) on %s\n", graph.Name, cfg.Addr)
		return srv.ServeSSE(sigCtx, cfg.Addr)
	}
	return srv.ServeStdio(sigCtx, opts.In, opts.Out)
}
