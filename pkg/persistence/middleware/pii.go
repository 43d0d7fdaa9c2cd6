package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/arbor/pkg/ports"
)

// Mask replaces redacted string values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.ArtifactStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of keys matching
// the patterns before artifacts are written. Only string values are masked,
// at any depth, so a redacted artifact still satisfies the state types and
// can be recovered from. Artifacts that are not JSON objects pass through.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ArtifactStore) ports.ArtifactStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Write(ctx context.Context, key string, data []byte) error {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return m.next.Write(ctx, key, data)
	}

	masked := maskMap(doc, m.patterns)
	out, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode masked artifact: %w", err)
	}
	return m.next.Write(ctx, key, out)
}

func (m *piiMiddleware) Read(ctx context.Context, key string) ([]byte, error) {
	return m.next.Read(ctx, key)
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *piiMiddleware) List(ctx context.Context, prefix string) ([]string, error) {
	return m.next.List(ctx, prefix)
}

// Helpers

func maskMap(m map[string]any, patterns []*regexp.Regexp) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if matches(k, patterns) {
			out[k] = maskValue(v)
			continue
		}
		out[k] = walk(v, patterns)
	}
	return out
}

func walk(v any, patterns []*regexp.Regexp) any {
	switch x := v.(type) {
	case map[string]any:
		return maskMap(x, patterns)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = walk(e, patterns)
		}
		return out
	default:
		return v
	}
}

// maskValue redacts every string inside v.
func maskValue(v any) any {
	switch x := v.(type) {
	case string:
		return Mask
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = maskValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = maskValue(e)
		}
		return out
	default:
		return v
	}
}

func matches(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
