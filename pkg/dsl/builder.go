package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
)

// Builder manages the graph construction.
type Builder struct {
	def    compiler.Definition
	fields []schema.Field
	nodes  map[string]*NodeBuilder
	types  *schema.Registry
	kinds  compiler.Catalog
	errs   []error
}

// New creates a new graph builder for a workflow named name.
func New(name string) *Builder {
	return &Builder{
		def: compiler.Definition{
			Name: name,
			Settings: domain.Settings{
				SaveArtifacts: true,
				MaxHistory:    domain.DefaultMaxHistory,
			},
		},
		nodes: make(map[string]*NodeBuilder),
		types: schema.NewRegistry(),
	}
}

// Types replaces the registry used to resolve state bundles.
func (b *Builder) Types(types *schema.Registry) *Builder {
	if types != nil {
		b.types = types
	}
	return b
}

// Kinds sets the catalog of custom node kinds, usually a *registry.Registry.
func (b *Builder) Kinds(kinds compiler.Catalog) *Builder {
	b.kinds = kinds
	return b
}

// Bundle adds every field of a named state bundle, e.g. "HilpState".
func (b *Builder) Bundle(name string) *Builder {
	fields, ok := b.types.State(name)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("unknown state bundle %q", name))
		return b
	}
	b.fields = append(b.fields, fields...)
	return b
}

// Field declares one state field.
func (b *Builder) Field(name string, t schema.Type) *Builder {
	b.fields = append(b.fields, schema.Field{Name: name, Type: t})
	return b
}

// Entry sets the entry point.
func (b *Builder) Entry(id string) *Builder {
	b.def.Entry = id
	return b
}

// Intervene marks nodes that wait for external input before they run.
func (b *Builder) Intervene(ids ...string) *Builder {
	b.def.Intervene = append(b.def.Intervene, ids...)
	return b
}

// ExitCommands sets the phrases that end the workflow when given as input.
func (b *Builder) ExitCommands(phrases ...string) *Builder {
	b.def.ExitCommands = append(b.def.ExitCommands, phrases...)
	return b
}

// Models sets the text and vision client names.
func (b *Builder) Models(llm, vlm string) *Builder {
	b.def.LLM = llm
	b.def.VLM = vlm
	return b
}

// Settings overrides the runtime settings.
func (b *Builder) Settings(s domain.Settings) *Builder {
	b.def.Settings = s
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: &domain.NodeSpec{
			ID: id,
		},
		builder: b,
	}
	b.nodes[id] = nb
	b.def.Nodes = append(b.def.Nodes, nb.node)
	return nb
}

// Build validates and assembles the graph. It applies the same checks as a
// compiled template.
func (b *Builder) Build() (*domain.Graph, error) {
	if len(b.errs) > 0 {
		return nil, &domain.CompileError{Msg: "invalid definition", Err: errors.Join(b.errs...)}
	}
	s, err := schema.New(b.fields...)
	if err != nil {
		return nil, &domain.CompileError{Path: "state_defs", Msg: "conflicting field definitions", Err: err}
	}

	def := b.def
	def.Schema = s
	if def.Entry == "" && len(def.Nodes) > 0 {
		def.Entry = def.Nodes[0].ID
	}

	opts := []compiler.Option{compiler.WithTypes(b.types)}
	if b.kinds != nil {
		opts = append(opts, compiler.WithNodes(b.kinds))
	}
	return compiler.New(opts...).Assemble(&def)
}

// BuildGraph implements domain.GraphBuilder.
func (b *Builder) BuildGraph() (*domain.Graph, error) {
	return b.Build()
}
