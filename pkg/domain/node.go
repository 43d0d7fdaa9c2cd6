package domain

// Node kinds known to the engine itself. Any other kind is looked up in the
// handler registry.
const (
	// KindPrompt renders a text template, sends it to the model client and
	// stores the answer in the node's sink fields.
	KindPrompt = "prompt"
	// KindInput is the synthetic, logic-free node inserted in front of every
	// intervene point. Reaching it suspends the run.
	KindInput = "input"
)

// InputSuffix is appended to an intervene node's ID to name its synthetic
// input node.
const InputSuffix = "_input"

// NodeSpec is one compiled node of a workflow graph.
type NodeSpec struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"` // "prompt", "input" or a registry key

	// Template is the prompt text of a prompt node, with {field} placeholders.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`

	// Sinks are the state fields the node writes its output into.
	Sinks []string `json:"sink,omitempty" yaml:"sink,omitempty"`

	// SinkFormat optionally describes the expected response format.
	SinkFormat string `json:"sink_format,omitempty" yaml:"sink_format,omitempty"`

	// ImageKeys are state fields holding image references. Nodes with image
	// keys are served by the vision client.
	ImageKeys []string `json:"image_keys,omitempty" yaml:"image_keys,omitempty"`

	// Kwargs are passed verbatim to the handler.
	Kwargs map[string]any `json:"kwargs,omitempty" yaml:"kwargs,omitempty"`

	Next Transition `json:"next" yaml:"next"`

	// Synthetic marks nodes inserted by the compiler.
	Synthetic bool `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`

	// Guards is the intervene node a synthetic input node stands in front of.
	Guards string `json:"guards,omitempty" yaml:"guards,omitempty"`
}

// InputNodeID returns the synthetic input node name for an intervene node.
func InputNodeID(nodeID string) string {
	return nodeID + InputSuffix
}

// UsesVision reports whether the node should be served by the vision client.
func (n *NodeSpec) UsesVision() bool {
	return len(n.ImageKeys) > 0
}
