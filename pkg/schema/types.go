package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type defines the contract for field validation.
// Implementations determine how values are validated against a type and
// which value a freshly materialized state starts with.
type Type interface {
	// Name returns the canonical name of the type (e.g., "str", "List[int]").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
	// Zero returns the default value for a field of this type.
	Zero() any
}

// --- Built-in Type Implementations ---

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "str" }
func (t *StringType) Zero() any    { return "" }

func (t *StringType) Validate(value any) error {
	_, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected str, got %T", value)
	}
	return nil
}

// IntType validates integer values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }
func (t *IntType) Zero() any    { return 0 }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	case float64:
		// Accept floats that are whole numbers (from JSON unmarshaling)
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

// FloatType validates floating-point values.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }
func (t *FloatType) Zero() any    { return 0.0 }

func (t *FloatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }
func (t *BoolType) Zero() any    { return false }

func (t *BoolType) Validate(value any) error {
	_, ok := value.(bool)
	if !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// AnyType accepts every value.
type AnyType struct{}

func (t *AnyType) Name() string           { return "Any" }
func (t *AnyType) Zero() any              { return nil }
func (t *AnyType) Validate(value any) error { return nil }

// NoneType only accepts nil. It is mostly useful as a union member.
type NoneType struct{}

func (t *NoneType) Name() string { return "None" }
func (t *NoneType) Zero() any    { return nil }

func (t *NoneType) Validate(value any) error {
	if value != nil {
		return fmt.Errorf("expected None, got %T", value)
	}
	return nil
}

// ListType validates slices of a specific element type.
type ListType struct {
	Elem Type
}

func (t *ListType) Name() string {
	return fmt.Sprintf("List[%s]", t.Elem.Name())
}

func (t *ListType) Zero() any { return []any{} }

func (t *ListType) Validate(value any) error {
	if value == nil {
		return fmt.Errorf("expected list, got nil")
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected list, got %T", value)
	}

	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		if err := t.Elem.Validate(elem); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// MapType validates string-keyed maps. Keys are always strings at runtime
// (that is what survives a JSON round trip), so a non-string key type only
// constrains what the key text must parse as.
type MapType struct {
	Key   Type
	Value Type
}

func (t *MapType) Name() string {
	return fmt.Sprintf("Dict[%s, %s]", t.Key.Name(), t.Value.Name())
}

func (t *MapType) Zero() any { return map[string]any{} }

func (t *MapType) Validate(value any) error {
	if value == nil {
		return fmt.Errorf("expected dict, got nil")
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map {
		return fmt.Errorf("expected dict, got %T", value)
	}

	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().Interface()
		if err := t.validateKey(key); err != nil {
			return fmt.Errorf("key %v: %w", key, err)
		}
		if err := t.Value.Validate(iter.Value().Interface()); err != nil {
			return fmt.Errorf("key %v: %w", key, err)
		}
	}
	return nil
}

func (t *MapType) validateKey(key any) error {
	s, ok := key.(string)
	if !ok {
		return t.Key.Validate(key)
	}
	switch t.Key.(type) {
	case *StringType, *AnyType:
		return nil
	default:
		parsed, err := parseScalar(s)
		if err != nil {
			return err
		}
		return t.Key.Validate(parsed)
	}
}

// UnionType accepts a value matching any of its members.
type UnionType struct {
	Members []Type
}

func (t *UnionType) Name() string {
	names := make([]string, len(t.Members))
	for i, m := range t.Members {
		names[i] = m.Name()
	}
	return fmt.Sprintf("Union[%s]", strings.Join(names, ", "))
}

// Zero returns the first member's zero value when that member is a
// primitive, and nil otherwise.
func (t *UnionType) Zero() any {
	if len(t.Members) == 0 || !IsPrimitive(t.Members[0]) {
		return nil
	}
	return t.Members[0].Zero()
}

func (t *UnionType) Validate(value any) error {
	for _, m := range t.Members {
		if m.Validate(value) == nil {
			return nil
		}
	}
	return fmt.Errorf("expected %s, got %T", t.Name(), value)
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	zero     any
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }
func (t *CustomType) Zero() any    { return t.zero }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Float creates a float type validator.
func Float() Type { return &FloatType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Any creates a type that accepts every value.
func Any() Type { return &AnyType{} }

// None creates a type that only accepts nil.
func None() Type { return &NoneType{} }

// List creates a list type validator for elements of the given type.
func List(elem Type) Type {
	return &ListType{Elem: elem}
}

// Map creates a dict type validator.
func Map(key, value Type) Type {
	return &MapType{Key: key, Value: value}
}

// Union creates a type accepting any of the given members, in order.
func Union(members ...Type) Type {
	return &UnionType{Members: members}
}

// Optional is shorthand for Union(t, None()).
func Optional(t Type) Type {
	return Union(t, None())
}

// Custom creates a custom type validator with a user-defined function.
// Fields of a custom type default to zero.
func Custom(name string, zero any, validate func(any) error) Type {
	return &CustomType{name: name, zero: zero, validate: validate}
}

// IsPrimitive reports whether t is one of str, int, float or bool.
func IsPrimitive(t Type) bool {
	switch t.(type) {
	case *StringType, *IntType, *FloatType, *BoolType:
		return true
	}
	return false
}

// ParseType converts a type name to a Type.
// Supports "str", "int", "float", "bool", "Any", "None", "list", "dict",
// "List[T]", "Dict[K, V]", "Union[A, B]", "Optional[T]" and the short
// list form "[T]".
func ParseType(typeStr string) (Type, error) {
	s := strings.TrimSpace(typeStr)
	if s == "" {
		return nil, fmt.Errorf("empty type name")
	}

	// Short list form: [str], [int], etc.
	if len(s) > 2 && s[0] == '[' && s[len(s)-1] == ']' {
		elem, err := ParseType(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	}

	if open := strings.IndexByte(s, '['); open > 0 {
		if s[len(s)-1] != ']' {
			return nil, fmt.Errorf("unsupported type: %s", typeStr)
		}
		args, err := splitArgs(s[open+1 : len(s)-1])
		if err != nil {
			return nil, fmt.Errorf("unsupported type: %s: %w", typeStr, err)
		}
		params := make([]Type, len(args))
		for i, arg := range args {
			if params[i], err = ParseType(arg); err != nil {
				return nil, err
			}
		}
		return generic(strings.TrimSpace(s[:open]), params, typeStr)
	}

	switch s {
	case "str", "string":
		return String(), nil
	case "int", "integer":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool", "boolean":
		return Bool(), nil
	case "Any", "any":
		return Any(), nil
	case "None", "none", "null":
		return None(), nil
	case "list", "List":
		return List(Any()), nil
	case "dict", "Dict":
		return Map(String(), Any()), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
}

func generic(head string, params []Type, original string) (Type, error) {
	switch head {
	case "List", "list":
		if len(params) != 1 {
			return nil, fmt.Errorf("%s: List takes exactly one parameter", original)
		}
		return List(params[0]), nil
	case "Dict", "dict":
		if len(params) != 2 {
			return nil, fmt.Errorf("%s: Dict takes exactly two parameters", original)
		}
		return Map(params[0], params[1]), nil
	case "Union":
		if len(params) == 0 {
			return nil, fmt.Errorf("%s: Union needs at least one member", original)
		}
		return Union(params...), nil
	case "Optional":
		if len(params) != 1 {
			return nil, fmt.Errorf("%s: Optional takes exactly one parameter", original)
		}
		return Optional(params[0]), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", original)
	}
}

// splitArgs splits a comma separated parameter list, ignoring commas nested
// inside brackets.
func splitArgs(s string) ([]string, error) {
	var (
		args  []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets")
			}
		case ',':
			if depth == 0 {
				args = append(args, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets")
	}
	last := s[start:]
	if strings.TrimSpace(last) == "" {
		return nil, fmt.Errorf("empty parameter")
	}
	return append(args, last), nil
}
