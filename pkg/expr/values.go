package expr

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// set is the runtime value of a set comprehension. Elements are unique
// under equal and kept in insertion order.
type set struct {
	items []any
}

func (s *set) add(v any) {
	for _, e := range s.items {
		if equal(e, v) {
			return
		}
	}
	s.items = append(s.items, v)
}

// function is the runtime value of a whitelisted function name used
// without calling it, e.g. the first argument of map(str, xs).
type function struct {
	name string
	call func(args []any) (any, error)
}

// canonical maps host values from the state onto the handful of runtime
// types the evaluator understands.
func canonical(v any) any {
	switch x := v.(type) {
	case nil, bool, int, float64, string, []any, map[string]any, *set, *function:
		return x
	case float32:
		return float64(x)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return int(reflect.ValueOf(x).Convert(reflect.TypeOf(0)).Int())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return out
	}
	return v
}

func typeName(v any) string {
	switch canonical(v).(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	case *set:
		return "set"
	case *function:
		return "builtin_function"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func truthy(v any) bool {
	switch x := canonical(v).(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case *set:
		return len(x.items) > 0
	default:
		return true
	}
}

// number reports v as a float and whether it is numeric. Booleans count as
// numbers, as they do in the host grammar.
func number(v any) (float64, bool) {
	switch x := canonical(v).(type) {
	case int:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isInt(v any) bool {
	switch canonical(v).(type) {
	case int, bool:
		return true
	}
	return false
}

func equal(a, b any) bool {
	a, b = canonical(a), canonical(b)
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !equal(v, w) {
				return false
			}
		}
		return true
	case *set:
		y, ok := b.(*set)
		if !ok || len(x.items) != len(y.items) {
			return false
		}
		for _, e := range x.items {
			if !member(e, y.items) {
				return false
			}
		}
		return true
	case *function:
		y, ok := b.(*function)
		return ok && x.name == y.name
	}
	return false
}

// identical implements `is`. Scalars are identical when they have the same
// type and value; containers only when they are the same object.
func identical(a, b any) bool {
	a, b = canonical(a), canonical(b)
	if typeName(a) != typeName(b) {
		return false
	}
	switch x := a.(type) {
	case []any:
		y := b.([]any)
		return len(x) == len(y) && reflect.ValueOf(x).Pointer() == reflect.ValueOf(y).Pointer()
	case map[string]any:
		return reflect.ValueOf(x).Pointer() == reflect.ValueOf(b).Pointer()
	case *set:
		return x == b.(*set)
	}
	return equal(a, b)
}

func member(v any, items []any) bool {
	for _, e := range items {
		if equal(v, e) {
			return true
		}
	}
	return false
}

// compare orders two values, returning -1, 0 or 1.
func compare(a, b any) (int, error) {
	a, b = canonical(a), canonical(b)
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			case fa == fb:
				return 0, nil
			}
			return 0, fmt.Errorf("cannot order NaN")
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case []any:
		if y, ok := b.([]any); ok {
			for i := 0; i < len(x) && i < len(y); i++ {
				if equal(x[i], y[i]) {
					continue
				}
				return compare(x[i], y[i])
			}
			return cmpInt(len(x), len(y)), nil
		}
	}
	return 0, fmt.Errorf("ordering not supported between %s and %s", typeName(a), typeName(b))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// contains implements `needle in haystack`.
func contains(haystack, needle any) (bool, error) {
	switch h := canonical(haystack).(type) {
	case string:
		n, ok := canonical(needle).(string)
		if !ok {
			return false, fmt.Errorf("'in <str>' requires str as left operand, not %s", typeName(needle))
		}
		return strings.Contains(h, n), nil
	case []any:
		return member(needle, h), nil
	case map[string]any:
		_, ok := h[mapKey(needle)]
		return ok, nil
	case *set:
		return member(needle, h.items), nil
	}
	return false, fmt.Errorf("argument of type %s is not a container", typeName(haystack))
}

// mapKey converts a key to the string form used by runtime maps.
func mapKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return pyStr(k)
}

// iterate lists the elements a for loop would visit. Map iteration yields
// keys in sorted order because runtime maps do not keep insertion order.
func iterate(v any) ([]any, error) {
	switch x := canonical(v).(type) {
	case []any:
		return x, nil
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	case *set:
		return x.items, nil
	}
	return nil, fmt.Errorf("%s is not iterable", typeName(v))
}

// pyStr renders a value the way str() does.
func pyStr(v any) string {
	if s, ok := canonical(v).(string); ok {
		return s
	}
	return pyRepr(v)
}

func pyRepr(v any) string {
	switch x := canonical(v).(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case float64:
		return formatFloat(x)
	case string:
		return "'" + strings.ReplaceAll(strings.ReplaceAll(x, `\`, `\\`), "'", `\'`) + "'"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = pyRepr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = pyRepr(k) + ": " + pyRepr(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *set:
		if len(x.items) == 0 {
			return "set()"
		}
		parts := make([]string, len(x.items))
		for i, e := range x.items {
			parts[i] = pyRepr(e)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *function:
		return "<built-in function " + x.name + ">"
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
