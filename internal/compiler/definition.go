package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/arbor/internal/dto"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
)

// Definition is a workflow before assembly: nodes as declared, with no
// synthetic input nodes and no redirected edges.
type Definition struct {
	Name   string
	Schema *schema.Schema
	// Nodes in declaration order.
	Nodes []*domain.NodeSpec
	Entry string
	// Intervene lists the nodes that wait for external input before they run.
	Intervene    []string
	ExitCommands []string
	LLM          string
	VLM          string
	Checkpointer string
	Settings     domain.Settings
}

func decode(data map[string]any) (*dto.Template, error) {
	var tpl dto.Template
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &tpl,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, &domain.CompileError{Msg: "cannot build decoder", Err: err}
	}
	if err := decoder.Decode(data); err != nil {
		return nil, &domain.CompileError{Msg: "invalid template", Err: err}
	}
	return &tpl, nil
}

// define converts the decoded template into a Definition, resolving state
// definitions and normalizing every node.
func (c *Compiler) define(tpl *dto.Template, order []string) (*Definition, error) {
	if strings.TrimSpace(tpl.Name) == "" {
		return nil, &domain.CompileError{Path: "name", Msg: "must not be empty"}
	}

	s, err := c.resolveState(tpl.StateDefs)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Name:         tpl.Name,
		Schema:       s,
		Entry:        tpl.EntryPoint,
		Intervene:    tpl.InterveneBefore,
		ExitCommands: tpl.ExitCommands,
		LLM:          tpl.LLM,
		VLM:          tpl.VLM,
		Checkpointer: tpl.Checkpointer,
		Settings: domain.Settings{
			SaveArtifacts: true,
			MaxHistory:    domain.DefaultMaxHistory,
		},
	}
	if tpl.SaveArtifacts != nil {
		def.Settings.SaveArtifacts = *tpl.SaveArtifacts
	}
	if tpl.DebugMode != nil {
		def.Settings.DebugMode = *tpl.DebugMode
	}
	if tpl.MaxHistory != nil {
		if *tpl.MaxHistory < 1 {
			return nil, &domain.CompileError{Path: "max_history", Msg: "must be at least 1"}
		}
		def.Settings.MaxHistory = *tpl.MaxHistory
	}

	for _, id := range declarationOrder(tpl.Nodes, order) {
		spec, err := c.defineNode(id, tpl.Nodes[id])
		if err != nil {
			return nil, err
		}
		def.Nodes = append(def.Nodes, spec)
	}
	return def, nil
}

func declarationOrder(nodes map[string]dto.Node, order []string) []string {
	ids := make([]string, 0, len(nodes))
	for _, id := range order {
		if _, ok := nodes[id]; ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	for _, id := range sortedKeys(nodes) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Compiler) defineNode(id string, n dto.Node) (*domain.NodeSpec, error) {
	if len(n.Extra) > 0 {
		c.logger.Warn("ignoring unknown node keys", "node", id, "keys", sortedKeys(n.Extra))
	}

	spec := &domain.NodeSpec{
		ID:         id,
		Type:       n.Type,
		Template:   n.Template,
		SinkFormat: n.Format,
	}

	var err error
	if spec.Sinks, err = stringList(n.Sink, true); err != nil {
		return nil, &domain.CompileError{Path: nodePath(id, "sink"), Msg: err.Error()}
	}
	if spec.ImageKeys, err = stringList(n.ImageKeys, false); err != nil {
		return nil, &domain.CompileError{Path: nodePath(id, "image_keys"), Msg: err.Error()}
	}

	switch kw := n.Kwargs.(type) {
	case nil:
	case map[string]any:
		spec.Kwargs = kw
	default:
		return nil, &domain.CompileError{Path: nodePath(id, "kwargs"), Msg: fmt.Sprintf("must be a mapping, got %T", n.Kwargs)}
	}

	if spec.Next, err = transition(n.Next); err != nil {
		return nil, &domain.CompileError{Path: nodePath(id, "next"), Msg: err.Error()}
	}
	return spec, nil
}

// stringList accepts a list of strings, or a single string when single is
// set, and returns the list form.
func stringList(value any, single bool) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if single {
			return []string{v}, nil
		}
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d must be a string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	if single {
		return nil, fmt.Errorf("must be a string or a list of strings, got %T", value)
	}
	return nil, fmt.Errorf("must be a list of strings, got %T", value)
}

func transition(value any) (domain.Transition, error) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return domain.Transition{}, fmt.Errorf("target must not be empty")
		}
		return domain.To(v), nil
	case map[string]any:
		for _, key := range []string{"condition", "then", "else"} {
			if _, ok := v[key]; !ok {
				return domain.Transition{}, fmt.Errorf("conditional transition is missing %q", key)
			}
		}
		var cond dto.ConditionalNext
		if err := mapstructure.Decode(v, &cond); err != nil {
			return domain.Transition{}, err
		}
		if strings.TrimSpace(cond.Condition) == "" {
			return domain.Transition{}, fmt.Errorf("condition must not be empty")
		}
		if cond.Then == "" || cond.Else == "" {
			return domain.Transition{}, fmt.Errorf("then and else must name a node or %s", domain.Terminal)
		}
		return domain.When(cond.Condition, cond.Then, cond.Else), nil
	default:
		return domain.Transition{}, fmt.Errorf("must be a node name or a conditional mapping, got %T", value)
	}
}

// resolveState builds the state schema from the template's state_defs.
// Entries are bundle names, [name, type] pairs or {name: type} mappings.
func (c *Compiler) resolveState(defs []any) (*schema.Schema, error) {
	var fields []schema.Field
	for i, def := range defs {
		path := fmt.Sprintf("state_defs[%d]", i)
		switch d := def.(type) {
		case string:
			bundle, ok := c.types.State(d)
			if !ok {
				return nil, &domain.CompileError{
					Path: path,
					Msg:  fmt.Sprintf("unknown state bundle %q (available: %s)", d, strings.Join(c.types.StateNames(), ", ")),
				}
			}
			fields = append(fields, bundle...)
		case []any:
			if len(d) != 2 {
				return nil, &domain.CompileError{Path: path, Msg: "field definition must be a [name, type] pair"}
			}
			name, ok := d[0].(string)
			if !ok || name == "" {
				return nil, &domain.CompileError{Path: path, Msg: "field name must be a non-empty string"}
			}
			f, err := c.field(name, d[1])
			if err != nil {
				return nil, &domain.CompileError{Path: path, Msg: "cannot resolve field type", Err: err}
			}
			fields = append(fields, f)
		case map[string]any:
			for _, name := range sortedKeys(d) {
				f, err := c.field(name, d[name])
				if err != nil {
					return nil, &domain.CompileError{Path: join(path, name), Msg: "cannot resolve field type", Err: err}
				}
				fields = append(fields, f)
			}
		default:
			return nil, &domain.CompileError{Path: path, Msg: fmt.Sprintf("invalid state definition %v", def)}
		}
	}

	s, err := schema.New(fields...)
	if err != nil {
		return nil, &domain.CompileError{Path: "state_defs", Msg: "conflicting field definitions", Err: err}
	}
	return s, nil
}

func (c *Compiler) field(name string, typ any) (schema.Field, error) {
	typeName, ok := typ.(string)
	if !ok {
		return schema.Field{}, fmt.Errorf("type of %q must be a string, got %T", name, typ)
	}
	t, err := c.types.Type(typeName)
	if err != nil {
		return schema.Field{}, err
	}
	return schema.Field{Name: name, Type: t}, nil
}
