package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var templateExts = []string{".yaml", ".yml", ".json"}

// Loader implements ports.TemplateLoader over a directory of template
// documents. A template is named by its file name without extension.
type Loader struct {
	Dir string
}

// NewLoader creates a loader reading templates from dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load returns the first of name.yaml, name.yml or name.json. A name that
// already carries an extension is read as is.
func (l *Loader) Load(name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid template name %q", name)
	}
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = candidates[:0]
		for _, ext := range templateExts {
			candidates = append(candidates, name+ext)
		}
	}
	for _, c := range candidates {
		data, err := os.ReadFile(filepath.Join(l.Dir, c))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read template %s: %w", c, err)
		}
	}
	return nil, fmt.Errorf("template not found: %s", name)
}

// List returns the names of all templates in the directory.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		for _, known := range templateExts {
			if ext == known {
				name := strings.TrimSuffix(entry.Name(), ext)
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
