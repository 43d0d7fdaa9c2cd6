package nodes

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/schema"
)

// DefaultSink receives the reply of a prompt node that declares no sink,
// when the state has such a field.
const DefaultSink = "output"

// Prompt returns the handler of a built-in prompt node. It renders the
// node template from the state (kwargs win on name clashes), sends it to the
// client and writes the reply into the node's sinks:
//
//   - one sink: the reply itself, parsed as JSON when the sink is not a str
//   - several sinks: the reply must be a JSON object; each sink reads the
//     key of the same name
//
// When the state declares "messages" the reply is also appended there as an
// assistant message.
func Prompt(spec *domain.NodeSpec, s *schema.Schema) registry.Handler {
	sinks := spec.Sinks
	if len(sinks) == 0 && s.Has(DefaultSink) {
		sinks = []string{DefaultSink}
	}

	return func(ctx context.Context, state map[string]any, client ports.ModelClient, opts map[string]any) (map[string]any, error) {
		values := maps.Clone(state)
		maps.Copy(values, opts)

		text, err := Format(spec.Template, values)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}

		var messages []ports.Message
		if instr := instructions(spec.SinkFormat, sinks); instr != "" {
			messages = append(messages, ports.Message{Role: "system", Content: instr})
		}
		messages = append(messages, ports.Message{
			Role:    "user",
			Content: text,
			Images:  images(state, spec.ImageKeys),
		})

		reply, err := client.Generate(ctx, messages, ports.GenerateOptions{Kwargs: opts})
		if err != nil {
			return nil, err
		}

		update, err := extract(reply, sinks, s)
		if err != nil {
			return nil, err
		}
		if s.Has("messages") {
			history, _ := state["messages"].([]any)
			update["messages"] = append(append([]any(nil), history...),
				map[string]any{"role": "assistant", "content": reply})
		}
		return update, nil
	}
}

func instructions(format string, sinks []string) string {
	var parts []string
	if format != "" {
		parts = append(parts, fmt.Sprintf("Respond in %s format.", format))
	}
	if len(sinks) > 1 {
		parts = append(parts, fmt.Sprintf("Reply with a single JSON object with the keys: %s.", strings.Join(sinks, ", ")))
	}
	return strings.Join(parts, " ")
}

func images(state map[string]any, keys []string) []string {
	var out []string
	for _, key := range keys {
		switch v := state[key].(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// extract maps a reply onto sink fields.
func extract(reply string, sinks []string, s *schema.Schema) (map[string]any, error) {
	update := make(map[string]any, len(sinks)+1)
	body := strings.TrimSpace(stripFence(reply))

	switch len(sinks) {
	case 0:
		return update, nil
	case 1:
		var parsed any
		valid := gjson.Valid(body)
		if valid {
			parsed = gjson.Parse(body).Value()
		}
		value, err := coerce(sinks[0], s, parsed, valid, reply)
		if err != nil {
			return nil, err
		}
		update[sinks[0]] = value
		return update, nil
	}

	if !gjson.Valid(body) || !gjson.Parse(body).IsObject() {
		return nil, fmt.Errorf("reply is not a JSON object with keys %s", strings.Join(sinks, ", "))
	}
	doc := gjson.Parse(body)
	for _, sink := range sinks {
		field := doc.Get(gjson.Escape(sink))
		if !field.Exists() {
			return nil, fmt.Errorf("reply has no key %q", sink)
		}
		value, err := coerce(sink, s, field.Value(), true, field.String())
		if err != nil {
			return nil, err
		}
		update[sink] = value
	}
	return update, nil
}

// coerce converts a reply into the sink's declared type. str sinks take
// the text as is; other types take the parsed JSON when it fits and the
// text otherwise.
func coerce(sink string, s *schema.Schema, parsed any, valid bool, text string) (any, error) {
	t, ok := s.Lookup(sink)
	if !ok {
		return text, nil
	}
	if _, isString := t.(*schema.StringType); isString {
		return text, nil
	}
	if valid {
		if value, err := schema.Normalize(t, schema.NormalizeValue(parsed)); err == nil {
			return value, nil
		}
	}
	if t.Validate(text) == nil {
		return text, nil
	}
	return nil, fmt.Errorf("sink %s expects %s, got %q", sink, t.Name(), text)
}

// stripFence removes a surrounding ``` code fence, which models often add
// around JSON.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(strings.TrimPrefix(t, "```"), "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 && !strings.ContainsAny(t[:nl], "{[\"") {
		t = t[nl+1:]
	}
	return t
}
