package schema

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Names of the state bundles every Registry starts with.
const (
	BaseState     = "State"
	HilpState     = "HilpState"
	PlanningState = "PlanningState"
)

// Registry resolves type names and named state bundles. A bundle is a
// reusable group of fields that templates can pull into their state by name.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]Type
	states map[string][]Field
}

// NewRegistry returns a registry preloaded with the built-in bundles.
func NewRegistry() *Registry {
	r := &Registry{
		types:  make(map[string]Type),
		states: make(map[string][]Field),
	}

	message := Map(String(), String())
	base := []Field{
		{Name: "current_node_type", Type: String()},
		{Name: "previous_node_type", Type: String()},
		{Name: "human_input", Type: String()},
		{Name: "input", Type: String()},
		{Name: "output", Type: String()},
		{Name: "messages", Type: List(message)},
		{Name: "conversation", Type: List(message)},
	}
	r.states[BaseState] = base
	r.states[HilpState] = append(slices.Clone(base),
		Field{Name: "begin_conversation", Type: Bool()},
		Field{Name: "end_conversation", Type: Bool()},
		Field{Name: "conversation_summary", Type: String()},
	)
	r.states[PlanningState] = append(slices.Clone(base),
		Field{Name: "plan", Type: String()},
		Field{Name: "planner_knowledge", Type: String()},
		Field{Name: "plan_history", Type: List(String())},
	)
	return r
}

// RegisterType adds a named type alias, e.g. "Message" for Dict[str, str].
func (r *Registry) RegisterType(name string, t Type) error {
	if name == "" || t == nil {
		return fmt.Errorf("type alias needs a name and a type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = t
	return nil
}

// RegisterState adds or replaces a named state bundle.
func (r *Registry) RegisterState(name string, fields ...Field) error {
	if name == "" {
		return fmt.Errorf("state bundle name must not be empty")
	}
	if _, err := New(fields...); err != nil {
		return fmt.Errorf("state bundle %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[name] = slices.Clone(fields)
	return nil
}

// Type resolves a type name. Registered aliases win over built-in names;
// generic parameters may reference aliases too.
func (r *Registry) Type(name string) (Type, error) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	t, ok := r.types[name]
	aliases := len(r.types)
	r.mu.RUnlock()
	if ok {
		return t, nil
	}
	if aliases == 0 {
		return ParseType(name)
	}
	return r.parseWithAliases(name)
}

func (r *Registry) parseWithAliases(name string) (Type, error) {
	open := strings.IndexByte(name, '[')
	if open <= 0 || name[len(name)-1] != ']' {
		return ParseType(name)
	}
	args, err := splitArgs(name[open+1 : len(name)-1])
	if err != nil {
		return nil, fmt.Errorf("unsupported type: %s: %w", name, err)
	}
	params := make([]Type, len(args))
	for i, arg := range args {
		if params[i], err = r.Type(arg); err != nil {
			return nil, err
		}
	}
	return generic(strings.TrimSpace(name[:open]), params, name)
}

// State returns the fields of a named bundle.
func (r *Registry) State(name string) ([]Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields, ok := r.states[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(fields), true
}

// StateNames lists the registered bundles, sorted.
func (r *Registry) StateNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.states))
	for name := range r.states {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
