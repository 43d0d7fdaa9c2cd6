package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

var requiredKeys = []string{"name", "state_defs", "nodes", "entry_point"}

// scalarKinds names the kind each top-level scalar must hold. A string made
// of a single ${name} placeholder stands in for any kind until it is
// interpolated.
var scalarKinds = map[string]string{
	"name":           "string",
	"entry_point":    "string",
	"llm":            "string",
	"vlm":            "string",
	"checkpointer":   "string",
	"save_artifacts": "boolean",
	"debug_mode":     "boolean",
	"max_history":    "integer",
}

var optionalKeys = []string{
	"llm", "vlm", "exit_commands", "intervene_before", "checkpointer",
	"save_artifacts", "debug_mode", "max_history",
}

// checkStructure validates the template shape before anything is
// interpolated: required and unknown keys, scalar and container types and
// the presence of "type" and "next" on every node.
func checkStructure(data map[string]any) error {
	for _, key := range requiredKeys {
		if _, ok := data[key]; !ok {
			return &domain.CompileError{Path: key, Msg: "required key is missing"}
		}
	}
	for _, key := range sortedKeys(data) {
		if !slices.Contains(requiredKeys, key) && !slices.Contains(optionalKeys, key) {
			return &domain.CompileError{
				Path: key,
				Msg:  fmt.Sprintf("unknown template key (allowed: %s)", strings.Join(append(slices.Clone(requiredKeys), optionalKeys...), ", ")),
			}
		}
	}

	for _, key := range sortedKeys(scalarKinds) {
		if err := checkScalar(key, data[key]); err != nil {
			return err
		}
	}

	defs, ok := data["state_defs"].([]any)
	if !ok {
		return &domain.CompileError{Path: "state_defs", Msg: "must be a list"}
	}
	if len(defs) == 0 {
		return &domain.CompileError{Path: "state_defs", Msg: "must not be empty"}
	}

	for _, key := range []string{"exit_commands", "intervene_before"} {
		value, present := data[key]
		if !present || value == nil {
			continue
		}
		items, ok := value.([]any)
		if !ok {
			return &domain.CompileError{Path: key, Msg: "must be a list"}
		}
		for i, item := range items {
			if _, ok := item.(string); !ok {
				return &domain.CompileError{Path: fmt.Sprintf("%s[%d]", key, i), Msg: "must be a string"}
			}
		}
	}

	nodes, ok := data["nodes"].(map[string]any)
	if !ok {
		return &domain.CompileError{Path: "nodes", Msg: "must be a mapping"}
	}
	if len(nodes) == 0 {
		return &domain.CompileError{Path: "nodes", Msg: "must declare at least one node"}
	}
	for _, id := range sortedKeys(nodes) {
		node, ok := nodes[id].(map[string]any)
		if !ok {
			return &domain.CompileError{Path: nodePath(id), Msg: "node configuration must be a mapping"}
		}
		if _, ok := node["type"]; !ok {
			return &domain.CompileError{Path: nodePath(id), Msg: "missing 'type'"}
		}
		if _, ok := node["next"]; !ok {
			return &domain.CompileError{Path: nodePath(id), Msg: "missing 'next'"}
		}
	}
	return nil
}

func checkScalar(key string, value any) error {
	if value == nil {
		return nil
	}
	kind := scalarKinds[key]
	switch v := value.(type) {
	case string:
		if kind == "string" || wholePlaceholder.MatchString(v) {
			return nil
		}
	case bool:
		if kind == "boolean" {
			return nil
		}
	case int, int64, uint64:
		if kind == "integer" {
			return nil
		}
	}
	return &domain.CompileError{Path: key, Msg: fmt.Sprintf("must be a %s, got %T", kind, value)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
