package schema

import (
	"fmt"
	"maps"
)

// Field describes one declared state field.
type Field struct {
	Name string
	Type Type
}

// Schema is an ordered field descriptor table. It is built once, when a
// workflow is compiled, and never mutated afterwards.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New builds a schema from fields. Re-declaring a field with the same type
// is accepted and collapsed; re-declaring it with a different type fails.
func New(fields ...Field) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field name must not be empty")
		}
		if f.Type == nil {
			return nil, fmt.Errorf("field %s: type is nil", f.Name)
		}
		if i, exists := s.index[f.Name]; exists {
			if prev := s.fields[i].Type.Name(); prev != f.Type.Name() {
				return nil, fmt.Errorf("field %s declared twice with conflicting types %s and %s", f.Name, prev, f.Type.Name())
			}
			continue
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustNew is like New but panics on error. Intended for tests and static
// declarations.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the declared field names in declaration order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Len returns the number of declared fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Lookup returns the declared type of a field.
func (s *Schema) Lookup(name string) (Type, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.fields[i].Type, true
}

// Has reports whether a field is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Defaults materializes a fresh value map with every field at its zero
// value.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any, s.Len())
	if s == nil {
		return out
	}
	for _, f := range s.fields {
		out[f.Name] = f.Type.Zero()
	}
	return out
}

// Normalize returns a copy of data where every declared field is converted
// to its canonical representation. Undeclared keys are copied unchanged.
func (s *Schema) Normalize(data map[string]any) (map[string]any, error) {
	out := maps.Clone(data)
	if out == nil {
		out = make(map[string]any)
	}
	var errs []error
	for name, value := range data {
		t, ok := s.Lookup(name)
		if !ok {
			continue
		}
		n, err := Normalize(t, value)
		if err != nil {
			errs = append(errs, &ValidationError{Key: name, Reason: err.Error(), Value: value})
			continue
		}
		out[name] = n
	}
	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}
	return out, nil
}

// Validate checks if data conforms to the schema: every declared field must
// be present and well typed.
// Returns an error with all validation failures found.
func Validate(schema *Schema, data map[string]any) error {
	if schema.Len() == 0 {
		// No schema = no validation
		return nil
	}

	var errs []error

	for _, f := range schema.fields {
		value, exists := data[f.Name]
		if !exists {
			errs = append(errs, &ValidationError{
				Key:    f.Name,
				Reason: "required",
				Value:  nil,
			})
			continue
		}

		if err := f.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    f.Name,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}

	return nil
}

// ValidateFields validates only specific fields from data against the schema.
// Missing fields are treated as an error.
func ValidateFields(schema *Schema, data map[string]any, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	var errs []error

	for _, fieldName := range fields {
		fieldType, exists := schema.Lookup(fieldName)
		if !exists {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: "not defined in schema",
				Value:  nil,
			})
			continue
		}

		value, fieldExists := data[fieldName]
		if !fieldExists {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: "required",
				Value:  nil,
			})
			continue
		}

		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}

	return nil
}
