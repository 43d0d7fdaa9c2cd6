package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

var (
	placeholder      = regexp.MustCompile(`\$\{([^}]+)\}`)
	wholePlaceholder = regexp.MustCompile(`^\$\{[^}]+\}$`)
)

// interpolate replaces every ${name} placeholder in string values, walking
// nested maps and lists. Keys are left untouched. The first unresolved
// placeholder, in key order, aborts with a MissingVariableError.
func interpolate(value any, bindings map[string]any, path string) (any, error) {
	switch v := value.(type) {
	case string:
		return substitute(v, bindings, path)
	case map[string]any:
		out := make(map[string]any, len(v))
		for _, k := range sortedKeys(v) {
			r, err := interpolate(v[k], bindings, join(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			r, err := interpolate(e, bindings, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

func substitute(s string, bindings map[string]any, path string) (string, error) {
	missing := ""
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		value, ok := bindings[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return render(value)
	})
	if missing != "" {
		return "", &domain.MissingVariableError{Name: missing, Path: path}
	}
	return out, nil
}

// render formats a binding the way condition literals spell it: True and
// False, None, and quoted strings inside lists and maps. A string binding is
// inserted as is.
func render(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return literal(value)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

func literal(value any) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return "'" + quoteEscaper.Replace(v) + "'"
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case []string:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = literal(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = literal(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		parts := make([]string, 0, len(v))
		for _, k := range sortedKeys(v) {
			parts = append(parts, literal(k)+": "+literal(v[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat keeps whole floats distinguishable from ints: 2.0, not 2.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
