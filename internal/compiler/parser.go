package compiler

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
)

// Document is a parsed, not yet validated, template.
type Document struct {
	Data map[string]any
	// Order lists node IDs in declaration order. Nodes missing from it are
	// placed after the listed ones, sorted by ID.
	Order []string
}

// Parse decodes a YAML or JSON template. JSON is accepted because it is a
// subset of YAML.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &domain.CompileError{Msg: "empty template"}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &domain.CompileError{Msg: "cannot parse template", Err: err}
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, &domain.CompileError{Msg: "template must be a mapping"}
	}

	var raw map[string]any
	if err := root.Content[0].Decode(&raw); err != nil {
		return nil, &domain.CompileError{Msg: "cannot decode template", Err: err}
	}
	values, ok := schema.NormalizeValue(raw).(map[string]any)
	if !ok {
		return nil, &domain.CompileError{Msg: fmt.Sprintf("template must be a mapping, got %T", raw)}
	}

	return &Document{Data: values, Order: nodeOrder(root.Content[0])}, nil
}

// nodeOrder reads the keys of the top-level "nodes" mapping in the order
// they were written.
func nodeOrder(mapping *yaml.Node) []string {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		if key.Value != "nodes" || value.Kind != yaml.MappingNode {
			continue
		}
		order := make([]string, 0, len(value.Content)/2)
		for j := 0; j+1 < len(value.Content); j += 2 {
			order = append(order, value.Content[j].Value)
		}
		return order
	}
	return nil
}
