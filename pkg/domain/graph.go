package domain

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/schema"
)

// Default workflow settings.
const (
	DefaultLLM        = "gpt-4o"
	DefaultMaxHistory = 1000
)

// Settings are the template level knobs that tune the runtime.
type Settings struct {
	SaveArtifacts bool `json:"save_artifacts"`
	DebugMode     bool `json:"debug_mode"`
	MaxHistory    int  `json:"max_history"`
}

// Graph is a compiled workflow. It is immutable once built: the engine
// only reads it, so one Graph can back any number of concurrent sessions.
type Graph struct {
	Name  string `json:"name"`
	Entry string `json:"entry_point"`

	// Nodes holds real and synthetic nodes by ID; Order lists IDs in
	// declaration order with each synthetic node right before its guard.
	Nodes map[string]*NodeSpec `json:"nodes"`
	Order []string             `json:"order"`

	// Interrupts maps every intervene node to its synthetic input node.
	Interrupts map[string]string `json:"interrupts,omitempty"`

	Schema *schema.Schema `json:"state"`

	ExitCommands []string `json:"exit_commands,omitempty"`
	LLM          string   `json:"llm,omitempty"`
	VLM          string   `json:"vlm,omitempty"`
	Checkpointer string   `json:"checkpointer,omitempty"`
	Settings     Settings `json:"settings"`
}

// GraphBuilder is implemented by anything that can produce a Graph:
// compiled templates as well as workflows assembled in code.
type GraphBuilder interface {
	BuildGraph() (*Graph, error)
}

// GraphBuilderFunc adapts a function to GraphBuilder.
type GraphBuilderFunc func() (*Graph, error)

func (f GraphBuilderFunc) BuildGraph() (*Graph, error) { return f() }

// BuildGraph lets an already built graph be used where a builder is needed.
func (g *Graph) BuildGraph() (*Graph, error) { return g, nil }

// Node returns a node by ID.
func (g *Graph) Node(id string) (*NodeSpec, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// IsInterrupt reports whether a node is an intervene point.
func (g *Graph) IsInterrupt(id string) bool {
	_, ok := g.Interrupts[id]
	return ok
}

// Exists reports whether target is a node or the terminal marker.
func (g *Graph) Exists(target string) bool {
	if target == Terminal {
		return true
	}
	_, ok := g.Nodes[target]
	return ok
}

// Successors lists the distinct targets reachable in one step from a node.
func (g *Graph) Successors(id string) []string {
	n, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, t := range n.Next.Targets() {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Check verifies the structural invariants every graph must satisfy. The
// compiler guarantees them for templates; hand-built graphs are checked
// when a workflow is created.
func (g *Graph) Check() error {
	if g.Name == "" {
		return fmt.Errorf("graph has no name")
	}
	if _, ok := g.Nodes[g.Entry]; !ok {
		return fmt.Errorf("entry point %q is not a node", g.Entry)
	}
	for id, n := range g.Nodes {
		if n.ID != id {
			return fmt.Errorf("node %q is registered as %q", n.ID, id)
		}
		if n.Next.IsConditional() && (n.Next.Then == "" || n.Next.Else == "") {
			return fmt.Errorf("node %q: conditional transition needs both then and else", id)
		}
		for _, t := range n.Next.Targets() {
			if !g.Exists(t) {
				return fmt.Errorf("node %q: transition target %q does not exist", id, t)
			}
		}
		if n.Synthetic {
			if n.Next.Target != n.Guards || n.Next.IsConditional() {
				return fmt.Errorf("input node %q must lead straight to %q", id, n.Guards)
			}
		}
	}
	for node, input := range g.Interrupts {
		in, ok := g.Nodes[input]
		if !ok || !in.Synthetic || in.Guards != node {
			return fmt.Errorf("intervene point %q has no input node", node)
		}
	}
	return nil
}
