package schema

import (
	"errors"
	"testing"
)

func TestPrimitiveTypes(t *testing.T) {
	tests := []struct {
		typ     Type
		value   any
		wantErr bool
	}{
		{String(), "hello", false},
		{String(), "", false},
		{String(), 42, true},
		{String(), nil, true},
		{Int(), 42, false},
		{Int(), int64(42), false},
		{Int(), float64(42), false}, // whole number
		{Int(), 42.5, true},
		{Int(), "42", true},
		{Int(), true, true},
		{Float(), 3.14, false},
		{Float(), 42, false},
		{Float(), "3.14", true},
		{Bool(), true, false},
		{Bool(), 1, true},
		{Any(), nil, false},
		{Any(), []int{1}, false},
		{None(), nil, false},
		{None(), "", true},
	}

	for _, tt := range tests {
		err := tt.typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Validate(%v) error = %v, wantErr %v", tt.typ.Name(), tt.value, err, tt.wantErr)
		}
	}
}

func TestListType(t *testing.T) {
	strings := List(String())
	nested := List(List(Int()))

	tests := []struct {
		typ     Type
		value   any
		wantErr bool
		desc    string
	}{
		{strings, []string{"a", "b"}, false, "string slice"},
		{strings, []any{}, false, "empty slice"},
		{strings, []any{"a", "b"}, false, "any slice with strings"},
		{strings, []int{1, 2}, true, "slice of ints when expecting strings"},
		{strings, "not a slice", true, "string instead of slice"},
		{strings, nil, true, "nil"},
		{nested, [][]int{{1}, {2, 3}}, false, "nested int slice"},
		{nested, []any{[]any{1, "x"}}, true, "nested mixed"},
	}

	for _, tt := range tests {
		err := tt.typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate(%v) error = %v, wantErr %v", tt.desc, tt.value, err, tt.wantErr)
		}
	}
}

func TestMapType(t *testing.T) {
	counts := Map(String(), Int())
	byID := Map(Int(), String())

	tests := []struct {
		typ     Type
		value   any
		wantErr bool
		desc    string
	}{
		{counts, map[string]any{"a": 1}, false, "string to int"},
		{counts, map[string]int{}, false, "typed empty map"},
		{counts, map[string]any{"a": "1"}, true, "wrong value type"},
		{counts, []any{}, true, "list instead of map"},
		{byID, map[string]any{"7": "x"}, false, "numeric key text"},
		{byID, map[string]any{"seven": "x"}, true, "non numeric key text"},
	}

	for _, tt := range tests {
		err := tt.typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate(%v) error = %v, wantErr %v", tt.desc, tt.value, err, tt.wantErr)
		}
	}
}

func TestUnionType(t *testing.T) {
	u := Union(Int(), String())
	if err := u.Validate(1); err != nil {
		t.Errorf("Validate(1) = %v", err)
	}
	if err := u.Validate("x"); err != nil {
		t.Errorf("Validate(x) = %v", err)
	}
	if err := u.Validate(true); err == nil {
		t.Error("Validate(true) should fail")
	}

	if got := u.Zero(); got != 0 {
		t.Errorf("Zero() = %v, want first member zero", got)
	}
	if got := Union(List(Int()), String()).Zero(); got != nil {
		t.Errorf("Zero() = %v, want nil for non-primitive first member", got)
	}
}

func TestCustomType(t *testing.T) {
	even := Custom("even", 0, func(v any) error {
		i, ok := v.(int)
		if !ok {
			return errors.New("not an int")
		}
		if i%2 != 0 {
			return errors.New("not even")
		}
		return nil
	})

	if even.Name() != "even" {
		t.Errorf("Name() = %q, want %q", even.Name(), "even")
	}
	if even.Validate(4) != nil || even.Validate(3) == nil || even.Validate("2") == nil {
		t.Error("custom validation did not apply")
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		input    string
		wantErr  bool
		wantName string
	}{
		{"str", false, "str"},
		{"string", false, "str"},
		{"int", false, "int"},
		{"float", false, "float"},
		{"bool", false, "bool"},
		{"Any", false, "Any"},
		{"list", false, "List[Any]"},
		{"dict", false, "Dict[str, Any]"},
		{"List[str]", false, "List[str]"},
		{"[int]", false, "List[int]"},
		{"List[Dict[str, str]]", false, "List[Dict[str, str]]"},
		{"Dict[str, List[int]]", false, "Dict[str, List[int]]"},
		{"Union[int, str]", false, "Union[int, str]"},
		{"Optional[str]", false, "Union[str, None]"},
		{"invalid", true, ""},
		{"List[invalid]", true, ""},
		{"List[str, int]", true, ""},
		{"Dict[str]", true, ""},
		{"List[str", true, ""},
		{"Union[]", true, ""},
	}

	for _, tt := range tests {
		typ, err := ParseType(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && typ.Name() != tt.wantName {
			t.Errorf("ParseType(%q) Name() = %q, want %q", tt.input, typ.Name(), tt.wantName)
		}
	}
}

func TestParseTypeNameRoundTrip(t *testing.T) {
	for _, in := range []string{"List[Dict[str, Union[int, None]]]", "Dict[int, float]"} {
		first, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", in, err)
		}
		second, err := ParseType(first.Name())
		if err != nil {
			t.Fatalf("ParseType(%q): %v", first.Name(), err)
		}
		if first.Name() != second.Name() {
			t.Errorf("round trip changed %q into %q", first.Name(), second.Name())
		}
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(List(Int()), []any{float64(1), int64(2)})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	list := got.([]any)
	if list[0] != 1 || list[1] != 2 {
		t.Errorf("Normalize() = %#v, want ints", list)
	}

	got, err = Normalize(Float(), 3)
	if err != nil || got != 3.0 {
		t.Errorf("Normalize(Float, 3) = %v, %v", got, err)
	}

	got, err = Normalize(Map(String(), List(String())), map[string][]string{"a": {"x"}})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	m := got.(map[string]any)
	if inner, ok := m["a"].([]any); !ok || inner[0] != "x" {
		t.Errorf("Normalize() = %#v", m)
	}

	if _, err := Normalize(Int(), "x"); err == nil {
		t.Error("Normalize() should reject invalid values")
	}
}
