package compiler

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/expr"
)

// validate checks node kinds, prompt configuration, sink fields and every
// reference: transition targets, the entry point and intervene points.
func (c *Compiler) validate(def *Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return &domain.CompileError{Path: "name", Msg: "must not be empty"}
	}
	if def.Schema == nil {
		return &domain.CompileError{Path: "state_defs", Msg: "no state schema"}
	}
	if len(def.Nodes) == 0 {
		return &domain.CompileError{Path: "nodes", Msg: "must declare at least one node"}
	}

	declared := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n == nil || n.ID == "" {
			return &domain.CompileError{Path: "nodes", Msg: "node without an ID"}
		}
		if n.ID == domain.Terminal {
			return &domain.CompileError{Path: nodePath(n.ID), Msg: fmt.Sprintf("%s is reserved for the terminal marker", domain.Terminal)}
		}
		if declared[n.ID] {
			return &domain.CompileError{Path: nodePath(n.ID), Msg: "node declared twice"}
		}
		declared[n.ID] = true
	}
	exists := func(target string) bool {
		return target == domain.Terminal || declared[target]
	}

	for _, n := range def.Nodes {
		if !c.knownKind(n.Type) {
			return &domain.CompileError{Path: nodePath(n.ID, "type"), Msg: fmt.Sprintf("unknown node type %q", n.Type)}
		}
		if n.Type == domain.KindPrompt && strings.TrimSpace(n.Template) == "" {
			return &domain.CompileError{Path: nodePath(n.ID, "template"), Msg: "prompt node needs a template"}
		}
		for _, sink := range n.Sinks {
			if !def.Schema.Has(sink) {
				return &domain.CompileError{Path: nodePath(n.ID, "sink"), Msg: fmt.Sprintf("sink %q is not a state field", sink)}
			}
		}
		if n.Next.IsConditional() && (n.Next.Then == "" || n.Next.Else == "") {
			return &domain.CompileError{Path: nodePath(n.ID, "next"), Msg: "conditional transition needs then and else"}
		}
		for _, target := range n.Next.Targets() {
			if !exists(target) {
				return &domain.CompileError{Path: nodePath(n.ID, "next"), Msg: fmt.Sprintf("transition target %q is not a node", target)}
			}
		}
	}

	if !declared[def.Entry] {
		return &domain.CompileError{Path: "entry_point", Msg: fmt.Sprintf("entry point %q is not a node", def.Entry)}
	}
	for i, id := range def.Intervene {
		if !declared[id] {
			return &domain.CompileError{Path: fmt.Sprintf("intervene_before[%d]", i), Msg: fmt.Sprintf("%q is not a node", id)}
		}
	}
	return nil
}

// validateConditions runs every condition through the expression
// whitelist. The CompileError wraps the SecurityError or SyntaxError.
func validateConditions(def *Definition) error {
	for _, n := range def.Nodes {
		if !n.Next.IsConditional() {
			continue
		}
		if err := expr.Validate(n.Next.Condition); err != nil {
			return &domain.CompileError{Path: nodePath(n.ID, "next", "condition"), Msg: "invalid condition", Err: err}
		}
	}
	return nil
}
