package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// GraphOverlay contains run data to highlight on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart of a compiled graph.
// Shapes follow the node role:
// - Entry point: ((Circle))
// - Input (synthetic intervene node): [/Parallelogram/]
// - Prompt: ([Stadium])
// - Default: [Rectangle]
// END is drawn once as a double circle when any transition reaches it.
func GenerateMermaid(g *domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	reachesEnd := false
	for _, id := range g.Order {
		node := g.Nodes[id]
		safeID := sanitizeMermaidID(id)

		opener, closer := "[", "]"
		switch {
		case id == g.Entry:
			opener, closer = "((", "))"
		case node.Synthetic:
			opener, closer = "[/", "/]"
		case node.Type == domain.KindPrompt:
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, id, closer)

		next := node.Next
		if next.IsConditional() {
			cond := strings.ReplaceAll(next.Condition, "\"", "'")
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, cond, sanitizeMermaidID(next.Then))
			fmt.Fprintf(&sb, "    %s -. \"else\" .-> %s\n", safeID, sanitizeMermaidID(next.Else))
		} else {
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(next.Target))
		}
		for _, t := range next.Targets() {
			if t == domain.Terminal {
				reachesEnd = true
			}
		}
	}
	if reachesEnd {
		fmt.Fprintf(&sb, "    %s(((\"%s\")))\n", domain.Terminal, domain.Terminal)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			// History can name nodes a later template revision dropped.
			if !g.Exists(id) {
				continue
			}
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentNode != "" && g.Exists(overlay.CurrentNode) {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

// OverlayFromHistory marks every node recorded in history as visited and
// the last one as current.
func OverlayFromHistory(history []*domain.Snapshot) *GraphOverlay {
	o := &GraphOverlay{}
	for _, s := range history {
		if s.Node == "" {
			continue
		}
		o.VisitedNodes = append(o.VisitedNodes, s.Node)
		o.CurrentNode = s.Node
	}
	return o
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
