// Package validator lints compiled graphs for problems the compiler
// accepts: nodes no run can visit and nodes a run can never leave.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Report lists the findings of ValidateGraph, each sorted by node ID.
type Report struct {
	// Unreachable nodes cannot be visited from the entry point.
	Unreachable []string
	// Trapped nodes reach neither END nor an intervene point, so a run that
	// enters them loops forever.
	Trapped []string
}

// OK reports whether the graph has no findings.
func (r *Report) OK() bool {
	return len(r.Unreachable) == 0 && len(r.Trapped) == 0
}

func (r *Report) Error() string {
	var lines []string
	for _, id := range r.Unreachable {
		lines = append(lines, fmt.Sprintf("unreachable node '%s'", id))
	}
	for _, id := range r.Trapped {
		lines = append(lines, fmt.Sprintf("node '%s' never reaches END or an intervene point", id))
	}
	return fmt.Sprintf("found %d problems:\n- %s", len(lines), strings.Join(lines, "\n- "))
}

// ValidateGraph crawls g from its entry point. It returns nil for a clean
// graph and a *Report otherwise.
func ValidateGraph(g *domain.Graph) error {
	reached := crawl(g.Entry, g.Successors)

	// Walk the edges backwards from every exit: END and the input nodes,
	// where an exit phrase can end the run.
	preds := make(map[string][]string)
	for _, id := range g.Order {
		for _, t := range g.Successors(id) {
			preds[t] = append(preds[t], id)
		}
	}
	exits := map[string]bool{}
	starts := []string{domain.Terminal}
	for _, id := range g.Order {
		if g.Nodes[id].Synthetic {
			starts = append(starts, id)
		}
	}
	for _, s := range starts {
		for id := range crawl(s, func(id string) []string { return preds[id] }) {
			exits[id] = true
		}
	}

	report := &Report{}
	for _, id := range g.Order {
		switch {
		case !reached[id]:
			report.Unreachable = append(report.Unreachable, id)
		case !exits[id]:
			report.Trapped = append(report.Trapped, id)
		}
	}
	sort.Strings(report.Unreachable)
	sort.Strings(report.Trapped)

	if report.OK() {
		return nil
	}
	return report
}

func crawl(start string, next func(string) []string) map[string]bool {
	visited := map[string]bool{}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, n := range next(id) {
			if !visited[n] {
				queue = append(queue, n)
			}
		}
	}
	return visited
}
