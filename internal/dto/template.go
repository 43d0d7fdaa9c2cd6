package dto

// Template is a workflow template after structure checks and variable
// interpolation. It uses "mapstructure" tags to match the template keys.
type Template struct {
	Name            string          `json:"name" mapstructure:"name"`
	StateDefs       []any           `json:"state_defs" mapstructure:"state_defs"`
	Nodes           map[string]Node `json:"nodes" mapstructure:"nodes"`
	EntryPoint      string          `json:"entry_point" mapstructure:"entry_point"`
	LLM             string          `json:"llm" mapstructure:"llm"`
	VLM             string          `json:"vlm" mapstructure:"vlm"`
	ExitCommands    []string        `json:"exit_commands" mapstructure:"exit_commands"`
	InterveneBefore []string        `json:"intervene_before" mapstructure:"intervene_before"`
	Checkpointer    string          `json:"checkpointer" mapstructure:"checkpointer"`

	// Runtime settings. Pointers tell "absent" from the zero value.
	SaveArtifacts *bool `json:"save_artifacts" mapstructure:"save_artifacts"`
	DebugMode     *bool `json:"debug_mode" mapstructure:"debug_mode"`
	MaxHistory    *int  `json:"max_history" mapstructure:"max_history"`
}

// Node is one entry of the template's "nodes" map.
// Sink, ImageKeys, Kwargs and Next keep their raw shape so the compiler can
// report precise errors about them.
type Node struct {
	Type      string `json:"type" mapstructure:"type"`
	Template  string `json:"template" mapstructure:"template"`
	Sink      any    `json:"sink" mapstructure:"sink"`
	Format    string `json:"format" mapstructure:"format"`
	ImageKeys any    `json:"image_keys" mapstructure:"image_keys"`
	Kwargs    any    `json:"kwargs" mapstructure:"kwargs"`
	Next      any    `json:"next" mapstructure:"next"`

	// Extra holds keys the compiler does not know. They are ignored.
	Extra map[string]any `json:"-" mapstructure:",remain"`
}

// ConditionalNext is the map form of a node's "next" key.
type ConditionalNext struct {
	Condition string `json:"condition" mapstructure:"condition"`
	Then      string `json:"then" mapstructure:"then"`
	Else      string `json:"else" mapstructure:"else"`
}
