package schema

import (
	"encoding/json"
	"fmt"
	"slices"
)

// MarshalJSON serializes the schema as an ordered list of [name, type]
// pairs, the same shape templates use for state_defs.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}

	raw := make([][2]string, len(s.fields))
	for i, f := range s.fields {
		raw[i] = [2]string{f.Name, f.Type.Name()}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON deserializes the schema from a list of [name, type] pairs.
// A {name: type} object is accepted too, in which case field order follows
// encoding/json map iteration and is therefore sorted by name.
func (s *Schema) UnmarshalJSON(data []byte) error {
	if s == nil {
		return fmt.Errorf("schema: UnmarshalJSON on nil pointer")
	}

	if string(data) == "null" {
		*s = Schema{}
		return nil
	}

	var pairs [][2]string
	if err := json.Unmarshal(data, &pairs); err != nil {
		var object map[string]string
		if errObj := json.Unmarshal(data, &object); errObj != nil {
			return err
		}
		parsed, errMap := ParseTypeMap(object)
		if errMap != nil {
			return errMap
		}
		*s = *parsed
		return nil
	}

	fields := make([]Field, 0, len(pairs))
	for _, p := range pairs {
		t, err := ParseType(p[1])
		if err != nil {
			return fmt.Errorf("field %s: %w", p[0], err)
		}
		fields = append(fields, Field{Name: p[0], Type: t})
	}
	parsed, err := New(fields...)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// ParseTypeMap converts a map of field names to type strings into a Schema.
// Example: {"api_key": "str", "retries": "int"}
func ParseTypeMap(typeMap map[string]string) (*Schema, error) {
	names := make([]string, 0, len(typeMap))
	for name := range typeMap {
		names = append(names, name)
	}
	slices.Sort(names)

	fields := make([]Field, 0, len(names))
	for _, key := range names {
		t, err := ParseType(typeMap[key])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		fields = append(fields, Field{Name: key, Type: t})
	}
	return New(fields...)
}
