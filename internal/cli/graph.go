package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/internal/validator"
	"github.com/aretw0/arbor/pkg/ports"
)

// Validate compiles a template and lints the graph. Compile errors are
// returned; lint findings are returned only when strict is set and are
// printed to w otherwise.
func Validate(template string, bindings map[string]any, strict bool, w io.Writer) error {
	g, err := arbor.Compile(template, arbor.WithBindings(bindings))
	if err != nil {
		return err
	}
	if err := validator.ValidateGraph(g); err != nil {
		if strict {
			return err
		}
		fmt.Fprintf(w, "Warning: %v\n", err)
	}
	fmt.Fprintf(w, "Workflow '%s' is valid (%d nodes, entry '%s').\n", g.Name, len(g.Order), g.Entry)
	return nil
}

// RenderGraph writes the Mermaid flowchart of a template to w. With a
// session ID the nodes that session visited are highlighted, read from
// store.
func RenderGraph(ctx context.Context, template string, bindings map[string]any, store ports.ArtifactStore, sessionID string, w io.Writer) error {
	if sessionID == "" {
		g, err := arbor.Compile(template, arbor.WithBindings(bindings))
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, graph.GenerateMermaid(g, nil))
		return err
	}

	wf, err := arbor.Load(template,
		arbor.WithBindings(bindings),
		arbor.WithStore(store),
		arbor.WithSessionID(sessionID),
	)
	if err != nil {
		return err
	}
	defer wf.Close()

	res, err := wf.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore session %q: %w", sessionID, err)
	}
	overlay := graph.OverlayFromHistory(wf.History())
	if res.Pending != "" {
		overlay.CurrentNode = res.Pending
	}
	_, err = io.WriteString(w, graph.GenerateMermaid(wf.Graph(), overlay))
	return err
}
