package memory

import (
	"fmt"
	"sort"
)

// Loader implements ports.TemplateLoader using an in-memory map.
type Loader struct {
	templates map[string][]byte
}

// NewLoader creates a new Loader with the provided template documents
// (YAML or JSON) keyed by name.
func NewLoader(data map[string]string) *Loader {
	templates := make(map[string][]byte, len(data))
	for k, v := range data {
		templates[k] = []byte(v)
	}
	return &Loader{
		templates: templates,
	}
}

// Load retrieves the raw template registered under name.
func (l *Loader) Load(name string) ([]byte, error) {
	content, ok := l.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return content, nil
}

// List returns all available template names.
func (l *Loader) List() ([]string, error) {
	keys := make([]string, 0, len(l.templates))
	for k := range l.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
