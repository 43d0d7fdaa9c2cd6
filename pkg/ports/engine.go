package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Workflow is the caller boundary of a single workflow instance. Adapters
// (terminal runner, HTTP server) drive workflows through it.
type Workflow interface {
	// Run starts the workflow with optional initial values.
	Run(ctx context.Context, initial map[string]any) (*domain.Result, error)

	// Resume feeds external input to a suspended run.
	Resume(ctx context.Context, input string) (*domain.Result, error)

	// Graph returns the compiled graph the instance walks.
	Graph() *domain.Graph
}
