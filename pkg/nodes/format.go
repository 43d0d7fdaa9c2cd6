package nodes

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MissingKeyError reports a {name} placeholder with no value.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("template references unknown key %q", e.Key)
}

// Format fills {name} placeholders from values. "{{" and "}}" produce
// literal braces. A placeholder naming no value fails with a
// *MissingKeyError.
func Format(template string, values map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			key := strings.TrimSpace(template[i+1 : i+1+end])
			if key == "" {
				return "", fmt.Errorf("empty placeholder at offset %d", i)
			}
			value, ok := values[key]
			if !ok {
				return "", &MissingKeyError{Key: key}
			}
			b.WriteString(Text(value))
			i += end + 1
		case c == '}':
			return "", fmt.Errorf("single '}' at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Text renders a state value for a prompt: strings verbatim, containers as
// JSON, everything else in its plain form.
func Text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any, map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
