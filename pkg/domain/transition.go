package domain

// Terminal is the transition target that ends a workflow.
const Terminal = "END"

// Transition decides where execution goes after a node completes. It is
// either a plain Target or a conditional with Then and Else branches.
type Transition struct {
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Condition is evaluated against the full state, e.g. "len(messages) > 5".
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Then      string `json:"then,omitempty" yaml:"then,omitempty"`
	Else      string `json:"else,omitempty" yaml:"else,omitempty"`
}

// To builds a plain transition.
func To(target string) Transition {
	return Transition{Target: target}
}

// When builds a conditional transition.
func When(condition, then, otherwise string) Transition {
	return Transition{Condition: condition, Then: then, Else: otherwise}
}

// IsConditional reports whether the transition depends on a condition.
func (t Transition) IsConditional() bool {
	return t.Condition != ""
}

// Targets lists every node the transition can lead to.
func (t Transition) Targets() []string {
	if t.IsConditional() {
		return []string{t.Then, t.Else}
	}
	return []string{t.Target}
}

// Redirect returns a copy with every target passed through fn.
func (t Transition) Redirect(fn func(string) string) Transition {
	if t.IsConditional() {
		t.Then = fn(t.Then)
		t.Else = fn(t.Else)
		return t
	}
	t.Target = fn(t.Target)
	return t
}
