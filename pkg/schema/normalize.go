package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Normalize converts value to the canonical runtime representation of t:
// string, int, float64, bool, []any, map[string]any or nil. Values decoded
// from JSON or YAML and values produced in memory compare equal once
// normalized. The value must already satisfy t.
func Normalize(t Type, value any) (any, error) {
	if err := t.Validate(value); err != nil {
		return nil, err
	}
	return normalize(t, value), nil
}

func normalize(t Type, value any) any {
	switch tt := t.(type) {
	case *StringType:
		return value.(string)
	case *IntType:
		n, _ := toInt(value)
		return n
	case *FloatType:
		f, _ := toFloat(value)
		return f
	case *BoolType:
		return value.(bool)
	case *NoneType:
		return nil
	case *ListType:
		rv := reflect.ValueOf(value)
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(tt.Elem, rv.Index(i).Interface())
		}
		return out
	case *MapType:
		rv := reflect.ValueOf(value)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(tt.Value, iter.Value().Interface())
		}
		return out
	case *UnionType:
		for _, m := range tt.Members {
			if m.Validate(value) == nil {
				return normalize(m, value)
			}
		}
		return value
	default:
		return NormalizeValue(value)
	}
}

// NormalizeValue canonicalizes an untyped value: integer kinds become int,
// float32 becomes float64, slices become []any and maps become
// map[string]any, recursively. Whole float64 values are kept as float64.
func NormalizeValue(value any) any {
	switch v := value.(type) {
	case nil, string, bool, int, float64:
		return v
	case float32:
		return float64(v)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, _ := toInt(v)
		return n
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		f, _ := v.Float64()
		return f
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = NormalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = NormalizeValue(e)
		}
		return out
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = NormalizeValue(iter.Value().Interface())
		}
		return out
	}
	return value
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := toInt(value); ok {
		return float64(n), true
	}
	return 0, false
}

// parseScalar interprets map key text as the most specific scalar it spells.
func parseScalar(s string) (any, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return s, nil
}
