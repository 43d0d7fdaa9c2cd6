package dsl

import "github.com/aretw0/arbor/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    *domain.NodeSpec
	builder *Builder
}

// Prompt marks the node as a prompt node rendering template.
func (n *NodeBuilder) Prompt(template string) *NodeBuilder {
	n.node.Type = domain.KindPrompt
	n.node.Template = template
	return n
}

// Kind sets a custom node kind served by a registered handler.
func (n *NodeBuilder) Kind(kind string) *NodeBuilder {
	n.node.Type = kind
	return n
}

// Sink sets the state fields the node writes to.
func (n *NodeBuilder) Sink(fields ...string) *NodeBuilder {
	n.node.Sinks = append(n.node.Sinks, fields...)
	return n
}

// Format describes the expected response format.
func (n *NodeBuilder) Format(format string) *NodeBuilder {
	n.node.SinkFormat = format
	return n
}

// Images sets the state fields holding images. The node is then served by
// the vision client.
func (n *NodeBuilder) Images(keys ...string) *NodeBuilder {
	n.node.ImageKeys = append(n.node.ImageKeys, keys...)
	return n
}

// Arg adds a handler option.
func (n *NodeBuilder) Arg(key string, value any) *NodeBuilder {
	if n.node.Kwargs == nil {
		n.node.Kwargs = make(map[string]any)
	}
	n.node.Kwargs[key] = value
	return n
}

// Go adds an unconditional transition to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.node.Next = domain.To(target)
	return n
}

// Branch routes to then when condition holds and to otherwise when not.
func (n *NodeBuilder) Branch(condition, then, otherwise string) *NodeBuilder {
	n.node.Next = domain.When(condition, then, otherwise)
	return n
}

// Terminal marks the node as a terminal node (end of the flow).
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.node.Next = domain.To(domain.Terminal)
	return n
}

// Intervene makes the node wait for external input before it runs.
func (n *NodeBuilder) Intervene() *NodeBuilder {
	n.builder.Intervene(n.node.ID)
	return n
}

// Add starts the next node, keeping the chain going.
func (n *NodeBuilder) Add(id string) *NodeBuilder {
	return n.builder.Add(id)
}

// Spec returns the node as configured so far.
func (n *NodeBuilder) Spec() domain.NodeSpec {
	return *n.node
}
