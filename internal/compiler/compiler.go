package compiler

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
)

// Catalog tells the compiler which node kinds have a handler.
// *registry.Registry satisfies it.
type Catalog interface {
	Has(kind string) bool
}

// Compiler turns workflow templates into immutable execution graphs.
// Compilation is all-or-nothing: any failure aborts it and no graph is
// returned.
type Compiler struct {
	bindings map[string]any
	nodes    Catalog
	types    *schema.Registry
	logger   *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithBindings sets the values substituted for ${name} placeholders.
func WithBindings(bindings map[string]any) Option {
	return func(c *Compiler) {
		c.bindings = bindings
	}
}

// WithNodes sets the catalog of custom node kinds.
func WithNodes(nodes Catalog) Option {
	return func(c *Compiler) {
		c.nodes = nodes
	}
}

// WithTypes sets the registry used to resolve state types and bundles.
func WithTypes(types *schema.Registry) Option {
	return func(c *Compiler) {
		if types != nil {
			c.types = types
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a compiler. Without options only the built-in prompt node and
// the built-in state bundles are known.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		types:  schema.NewRegistry(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompileFile reads and compiles a template file.
func (c *Compiler) CompileFile(path string) (*domain.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.CompileError{Msg: "cannot read template", Err: err}
	}
	return c.CompileBytes(data)
}

// CompileBytes parses and compiles a YAML or JSON template.
func (c *Compiler) CompileBytes(data []byte) (*domain.Graph, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return c.Compile(doc)
}

// Compile runs the compilation stages over a parsed template:
// structure, interpolation, node validation, condition validation and
// assembly.
func (c *Compiler) Compile(doc *Document) (*domain.Graph, error) {
	if doc == nil || doc.Data == nil {
		return nil, &domain.CompileError{Msg: "empty template"}
	}
	if err := checkStructure(doc.Data); err != nil {
		return nil, err
	}

	interpolated, err := interpolate(doc.Data, c.bindings, "")
	if err != nil {
		return nil, err
	}

	tpl, err := decode(interpolated.(map[string]any))
	if err != nil {
		return nil, err
	}

	def, err := c.define(tpl, doc.Order)
	if err != nil {
		return nil, err
	}

	graph, err := c.Assemble(def)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("workflow compiled",
		"workflow", graph.Name,
		"nodes", len(graph.Nodes),
		"interrupts", len(graph.Interrupts))
	return graph, nil
}

// Assemble validates a definition and builds its graph. Templates reach it
// after decoding; workflows built in code call it directly.
func (c *Compiler) Assemble(def *Definition) (*domain.Graph, error) {
	if def == nil {
		return nil, &domain.CompileError{Msg: "empty definition"}
	}
	if err := c.validate(def); err != nil {
		return nil, err
	}
	if err := validateConditions(def); err != nil {
		return nil, err
	}
	graph, err := assemble(def)
	if err != nil {
		return nil, err
	}
	if err := graph.Check(); err != nil {
		return nil, &domain.CompileError{Msg: "assembled graph is inconsistent", Err: err}
	}
	return graph, nil
}

func (c *Compiler) knownKind(kind string) bool {
	if kind == domain.KindPrompt {
		return true
	}
	return c.nodes != nil && c.nodes.Has(kind)
}

func nodePath(id string, rest ...string) string {
	p := fmt.Sprintf("nodes.%s", id)
	for _, r := range rest {
		p += "." + r
	}
	return p
}
