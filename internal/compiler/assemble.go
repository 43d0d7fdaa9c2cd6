package compiler

import (
	"fmt"
	"maps"
	"slices"

	"github.com/aretw0/arbor/pkg/domain"
)

// assemble builds the graph: one synthetic input node in front of every
// intervene point, every edge into an intervene point redirected through
// its input node, and the entry point redirected the same way.
func assemble(def *Definition) (*domain.Graph, error) {
	intervene := make(map[string]bool, len(def.Intervene))
	for _, id := range def.Intervene {
		intervene[id] = true
	}
	redirect := func(target string) string {
		if intervene[target] {
			return domain.InputNodeID(target)
		}
		return target
	}

	g := &domain.Graph{
		Name:         def.Name,
		Entry:        redirect(def.Entry),
		Nodes:        make(map[string]*domain.NodeSpec, len(def.Nodes)+len(intervene)),
		Order:        make([]string, 0, len(def.Nodes)+len(intervene)),
		Interrupts:   make(map[string]string, len(intervene)),
		Schema:       def.Schema,
		ExitCommands: slices.Clone(def.ExitCommands),
		LLM:          def.LLM,
		VLM:          def.VLM,
		Checkpointer: def.Checkpointer,
		Settings:     def.Settings,
	}
	if g.LLM == "" {
		g.LLM = domain.DefaultLLM
	}
	if g.Settings.MaxHistory < 1 {
		g.Settings.MaxHistory = domain.DefaultMaxHistory
	}

	declared := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		declared[n.ID] = true
	}

	for _, n := range def.Nodes {
		if intervene[n.ID] {
			inputID := domain.InputNodeID(n.ID)
			if declared[inputID] {
				return nil, &domain.CompileError{
					Path: nodePath(inputID),
					Msg:  fmt.Sprintf("name is reserved for the input node of intervene point %q", n.ID),
				}
			}
			g.Nodes[inputID] = &domain.NodeSpec{
				ID:        inputID,
				Type:      domain.KindInput,
				Next:      domain.To(n.ID),
				Synthetic: true,
				Guards:    n.ID,
			}
			g.Order = append(g.Order, inputID)
			g.Interrupts[n.ID] = inputID
		}

		spec := *n
		spec.Sinks = slices.Clone(n.Sinks)
		spec.ImageKeys = slices.Clone(n.ImageKeys)
		spec.Kwargs = maps.Clone(n.Kwargs)
		spec.Next = n.Next.Redirect(redirect)
		g.Nodes[n.ID] = &spec
		g.Order = append(g.Order, n.ID)
	}
	return g, nil
}
