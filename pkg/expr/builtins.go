package expr

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

var builtins = map[string]*function{}

func init() {
	for name, fn := range map[string]func([]any) (any, error){
		"len":    builtinLen,
		"upper":  stringFunc("upper", strings.ToUpper),
		"lower":  stringFunc("lower", strings.ToLower),
		"str":    builtinStr,
		"int":    builtinInt,
		"float":  builtinFloat,
		"bool":   builtinBool,
		"list":   builtinList,
		"dict":   builtinDict,
		"all":    builtinAll,
		"any":    builtinAny,
		"filter": builtinFilter,
		"map":    builtinMap,
		"sum":    builtinSum,
		"max":    extremum("max", 1),
		"min":    extremum("min", -1),
	} {
		builtins[name] = &function{name: name, call: fn}
	}
}

func arity(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("%s() takes exactly %d argument(s) (%d given)", name, min, len(args))
		}
		return fmt.Errorf("%s() takes %d to %d arguments (%d given)", name, min, max, len(args))
	}
	return nil
}

func builtinLen(args []any) (any, error) {
	if err := arity("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := canonical(args[0]).(type) {
	case string:
		return len([]rune(x)), nil
	case []any:
		return len(x), nil
	case map[string]any:
		return len(x), nil
	case *set:
		return len(x.items), nil
	}
	return nil, fmt.Errorf("object of type %s has no len()", typeName(args[0]))
}

func stringFunc(name string, fn func(string) string) func([]any) (any, error) {
	return func(args []any) (any, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		s, ok := canonical(args[0]).(string)
		if !ok {
			return nil, fmt.Errorf("%s() requires a str, got %s", name, typeName(args[0]))
		}
		return fn(s), nil
	}
}

func builtinStr(args []any) (any, error) {
	if err := arity("str", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return "", nil
	}
	return pyStr(args[0]), nil
}

func builtinInt(args []any) (any, error) {
	if err := arity("int", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return 0, nil
	}
	switch x := canonical(args[0]).(type) {
	case int:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("cannot convert float %s to integer", formatFloat(x))
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(x), "_", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid literal for int(): %s", pyRepr(x))
		}
		return n, nil
	}
	return nil, fmt.Errorf("int() argument must be a string or a number, not %s", typeName(args[0]))
}

func builtinFloat(args []any) (any, error) {
	if err := arity("float", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return 0.0, nil
	}
	if f, ok := number(args[0]); ok {
		return f, nil
	}
	if s, ok := canonical(args[0]).(string); ok {
		text := strings.ToLower(strings.TrimSpace(s))
		switch text {
		case "inf", "+inf", "infinity":
			return math.Inf(1), nil
		case "-inf", "-infinity":
			return math.Inf(-1), nil
		case "nan":
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("could not convert string to float: %s", pyRepr(s))
		}
		return f, nil
	}
	return nil, fmt.Errorf("float() argument must be a string or a number, not %s", typeName(args[0]))
}

func builtinBool(args []any) (any, error) {
	if err := arity("bool", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return false, nil
	}
	return truthy(args[0]), nil
}

func builtinList(args []any) (any, error) {
	if err := arity("list", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return []any{}, nil
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	return slices.Clone(items), nil
}

func builtinDict(args []any) (any, error) {
	if err := arity("dict", args, 0, 1); err != nil {
		return nil, err
	}
	out := map[string]any{}
	if len(args) == 0 {
		return out, nil
	}
	if m, ok := canonical(args[0]).(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		pair, ok := canonical(item).([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("dictionary update sequence element #%d is not a pair", i)
		}
		out[mapKey(pair[0])] = pair[1]
	}
	return out, nil
}

func builtinAll(args []any) (any, error) {
	if err := arity("all", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if !truthy(item) {
			return false, nil
		}
	}
	return true, nil
}

func builtinAny(args []any) (any, error) {
	if err := arity("any", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if truthy(item) {
			return true, nil
		}
	}
	return false, nil
}

func callable(v any, name string) (*function, error) {
	f, ok := v.(*function)
	if !ok {
		return nil, fmt.Errorf("%s() expects a function, got %s", name, typeName(v))
	}
	return f, nil
}

// builtinFilter returns a list rather than a lazy iterator, so len() and
// truthiness work on the result directly.
func builtinFilter(args []any) (any, error) {
	if err := arity("filter", args, 2, 2); err != nil {
		return nil, err
	}
	items, err := iterate(args[1])
	if err != nil {
		return nil, err
	}
	out := []any{}
	if args[0] == nil {
		for _, item := range items {
			if truthy(item) {
				out = append(out, item)
			}
		}
		return out, nil
	}
	f, err := callable(args[0], "filter")
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		keep, err := f.call([]any{item})
		if err != nil {
			return nil, err
		}
		if truthy(keep) {
			out = append(out, item)
		}
	}
	return out, nil
}

// builtinMap accepts several iterables and stops at the shortest one.
func builtinMap(args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("map() must have at least two arguments")
	}
	f, err := callable(args[0], "map")
	if err != nil {
		return nil, err
	}
	var columns [][]any
	shortest := -1
	for _, a := range args[1:] {
		items, err := iterate(a)
		if err != nil {
			return nil, err
		}
		columns = append(columns, items)
		if shortest < 0 || len(items) < shortest {
			shortest = len(items)
		}
	}
	out := make([]any, 0, shortest)
	for i := 0; i < shortest; i++ {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = col[i]
		}
		v, err := f.call(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func builtinSum(args []any) (any, error) {
	if err := arity("sum", args, 1, 2); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	var start any = 0
	if len(args) == 2 {
		start = args[1]
	}

	allInt := isInt(start)
	total, ok := number(start)
	if !ok {
		return nil, fmt.Errorf("sum() start must be a number, not %s", typeName(start))
	}
	for _, item := range items {
		f, ok := number(item)
		if !ok {
			return nil, fmt.Errorf("unsupported operand type for sum(): %s", typeName(item))
		}
		allInt = allInt && isInt(item)
		total += f
	}
	if allInt {
		return int(total), nil
	}
	return total, nil
}

// extremum builds max (sign 1) and min (sign -1). With one argument it
// scans an iterable, with several it compares the arguments themselves.
func extremum(name string, sign int) func([]any) (any, error) {
	return func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s expected at least 1 argument, got 0", name)
		}
		items := args
		if len(args) == 1 {
			var err error
			if items, err = iterate(args[0]); err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, fmt.Errorf("%s() arg is an empty sequence", name)
			}
		}
		best := items[0]
		for _, item := range items[1:] {
			c, err := compare(item, best)
			if err != nil {
				return nil, err
			}
			if c*sign > 0 {
				best = item
			}
		}
		return best, nil
	}
}
