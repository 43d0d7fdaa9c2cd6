package expr

import (
	"errors"
	"fmt"
	"math"
)

// Results of Evaluate, consumed by the routing layer.
const (
	True  = "true"
	False = "false"
)

// Program is a parsed and validated expression, safe to evaluate any
// number of times against different states.
type Program struct {
	src  string
	root *node
}

// Compile parses and validates text. Validation always runs to completion
// before a Program is returned, so nothing in a rejected expression can be
// evaluated.
func Compile(text string) (*Program, error) {
	root, err := parse(text)
	if err != nil {
		return nil, err
	}
	if err := check(text, root); err != nil {
		return nil, err
	}
	return &Program{src: text, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Program {
	p, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Program) String() string { return p.src }

// Names lists the state identifiers the expression reads, excluding
// comprehension variables and function names.
func (p *Program) Names() []string {
	skip := map[*node]bool{}
	bound := map[string]bool{}
	walk(p.root, func(n *node) bool {
		if n.kind == kindCall {
			skip[n.x] = true
		}
		for _, g := range n.gens {
			if g.target.kind == kindName {
				bound[g.target.name] = true
				skip[g.target] = true
			}
		}
		return true
	})

	seen := map[string]bool{}
	var names []string
	walk(p.root, func(n *node) bool {
		if n.kind == kindName && !skip[n] && !bound[n.name] && !seen[n.name] && !whitelist[n.name] {
			seen[n.name] = true
			names = append(names, n.name)
		}
		return true
	})
	return names
}

// Value evaluates the expression and returns its raw value.
func (p *Program) Value(state map[string]any) (any, error) {
	e := &evaluator{state: state}
	v, err := e.eval(p.root, nil)
	if err != nil {
		return nil, &EvalError{Expr: p.src, Err: err}
	}
	return v, nil
}

// Eval evaluates the expression and reports its truthiness.
func (p *Program) Eval(state map[string]any) (bool, error) {
	v, err := p.Value(state)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Evaluate validates and evaluates text against state and returns True or
// False. A name missing from state evaluates to false; this keeps routing
// total but also hides misspelled field names.
func Evaluate(text string, state map[string]any) (string, error) {
	p, err := Compile(text)
	if err != nil {
		return "", err
	}
	ok, err := p.Eval(state)
	if err != nil {
		return "", err
	}
	if ok {
		return True, nil
	}
	return False, nil
}

// scope holds comprehension variables. Inner scopes shadow outer ones and
// the state.
type scope struct {
	vars   map[string]any
	parent *scope
}

func (s *scope) lookup(name string) (any, bool) {
	for ; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

type evaluator struct {
	state map[string]any
}

var errUnsupported = errors.New("unsupported construct")

func (e *evaluator) resolve(name string, sc *scope) any {
	if v, ok := sc.lookup(name); ok {
		return v
	}
	if v, ok := e.state[name]; ok {
		return canonical(v)
	}
	switch name {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}
	if f, ok := builtins[name]; ok {
		return f
	}
	return false
}

func (e *evaluator) eval(n *node, sc *scope) (any, error) {
	switch n.kind {
	case kindConst:
		return n.value, nil
	case kindName:
		return e.resolve(n.name, sc), nil
	case kindList:
		out := make([]any, 0, len(n.args))
		for _, a := range n.args {
			v, err := e.eval(a, sc)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case kindDict:
		out := make(map[string]any, len(n.keys))
		for i, k := range n.keys {
			kv, err := e.eval(k, sc)
			if err != nil {
				return nil, err
			}
			vv, err := e.eval(n.args[i], sc)
			if err != nil {
				return nil, err
			}
			out[mapKey(kv)] = vv
		}
		return out, nil
	case kindBoolOp:
		return e.evalBoolOp(n, sc)
	case kindUnary:
		return e.evalUnary(n, sc)
	case kindCompare:
		return e.evalCompare(n, sc)
	case kindSubscript:
		return e.evalSubscript(n, sc)
	case kindCall:
		return e.evalCall(n, sc)
	case kindListComp, kindGenExp:
		out := []any{}
		err := e.comprehend(n.gens, 0, sc, func(inner *scope) error {
			v, err := e.eval(n.x, inner)
			if err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
		return out, err
	case kindSetComp:
		out := &set{}
		err := e.comprehend(n.gens, 0, sc, func(inner *scope) error {
			v, err := e.eval(n.x, inner)
			if err != nil {
				return err
			}
			out.add(v)
			return nil
		})
		return out, err
	case kindDictComp:
		out := map[string]any{}
		err := e.comprehend(n.gens, 0, sc, func(inner *scope) error {
			k, err := e.eval(n.x, inner)
			if err != nil {
				return err
			}
			v, err := e.eval(n.y, inner)
			if err != nil {
				return err
			}
			out[mapKey(k)] = v
			return nil
		})
		return out, err
	}
	return nil, fmt.Errorf("%w: %s", errUnsupported, n.kind)
}

func (e *evaluator) evalBoolOp(n *node, sc *scope) (any, error) {
	var v any
	for _, operand := range n.args {
		var err error
		if v, err = e.eval(operand, sc); err != nil {
			return nil, err
		}
		if n.op == "and" && !truthy(v) || n.op == "or" && truthy(v) {
			return v, nil
		}
	}
	return v, nil
}

func (e *evaluator) evalUnary(n *node, sc *scope) (any, error) {
	v, err := e.eval(n.x, sc)
	if err != nil {
		return nil, err
	}
	if n.op == "not" {
		return !truthy(v), nil
	}
	switch x := canonical(v).(type) {
	case int:
		if n.op == "-" {
			return -x, nil
		}
		return x, nil
	case float64:
		if n.op == "-" {
			return -x, nil
		}
		return x, nil
	case bool:
		i := 0
		if x {
			i = 1
		}
		if n.op == "-" {
			return -i, nil
		}
		return i, nil
	}
	return nil, fmt.Errorf("bad operand type for unary %s: %s", n.op, typeName(v))
}

// evalCompare evaluates a chain left to right and stops at the first pair
// that does not hold. Each comparator is evaluated at most once.
func (e *evaluator) evalCompare(n *node, sc *scope) (any, error) {
	left, err := e.eval(n.x, sc)
	if err != nil {
		return nil, err
	}
	for i, op := range n.ops {
		right, err := e.eval(n.args[i], sc)
		if err != nil {
			return nil, err
		}
		ok, err := compareOp(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func compareOp(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "in":
		return contains(right, left)
	case "not in":
		ok, err := contains(right, left)
		return !ok, err
	case "is":
		return identical(left, right), nil
	case "is not":
		return !identical(left, right), nil
	}
	c, err := compare(left, right)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown comparison %q", op)
}

func (e *evaluator) evalSubscript(n *node, sc *scope) (any, error) {
	target, err := e.eval(n.x, sc)
	if err != nil {
		return nil, err
	}
	if n.y.kind == kindSlice {
		return e.evalSlice(canonical(target), n.y, sc)
	}
	index, err := e.eval(n.y, sc)
	if err != nil {
		return nil, err
	}

	switch t := canonical(target).(type) {
	case map[string]any:
		v, ok := t[mapKey(index)]
		if !ok {
			return nil, fmt.Errorf("key %s not found", pyRepr(index))
		}
		return v, nil
	case []any:
		i, err := position(index, len(t))
		if err != nil {
			return nil, err
		}
		return t[i], nil
	case string:
		runes := []rune(t)
		i, err := position(index, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	}
	return nil, fmt.Errorf("%s is not subscriptable", typeName(target))
}

func position(index any, length int) (int, error) {
	if !isInt(index) {
		return 0, fmt.Errorf("indices must be integers, not %s", typeName(index))
	}
	f, _ := number(index)
	i := int(f)
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, fmt.Errorf("index %d out of range", int(f))
	}
	return i, nil
}

func (e *evaluator) evalSlice(target any, s *node, sc *scope) (any, error) {
	bound := func(b *node) (*int, error) {
		if b == nil {
			return nil, nil
		}
		v, err := e.eval(b, sc)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		if !isInt(v) {
			return nil, fmt.Errorf("slice indices must be integers, not %s", typeName(v))
		}
		f, _ := number(v)
		i := int(f)
		return &i, nil
	}
	lo, err := bound(s.lower)
	if err != nil {
		return nil, err
	}
	hi, err := bound(s.upper)
	if err != nil {
		return nil, err
	}
	st, err := bound(s.step)
	if err != nil {
		return nil, err
	}

	switch t := target.(type) {
	case []any:
		idx, err := sliceIndices(len(t), lo, hi, st)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(idx))
		for i, j := range idx {
			out[i] = t[j]
		}
		return out, nil
	case string:
		runes := []rune(t)
		idx, err := sliceIndices(len(runes), lo, hi, st)
		if err != nil {
			return nil, err
		}
		out := make([]rune, len(idx))
		for i, j := range idx {
			out[i] = runes[j]
		}
		return string(out), nil
	}
	return nil, fmt.Errorf("%s cannot be sliced", typeName(target))
}

// sliceIndices resolves lo:hi:step against a sequence of length n using the
// host grammar's clamping rules.
func sliceIndices(n int, lo, hi, st *int) ([]int, error) {
	step := 1
	if st != nil {
		step = *st
	}
	if step == 0 {
		return nil, fmt.Errorf("slice step cannot be zero")
	}

	clamp := func(p *int, def, min, max int) int {
		if p == nil {
			return def
		}
		v := *p
		if v < 0 {
			v += n
		}
		return int(math.Max(float64(min), math.Min(float64(max), float64(v))))
	}

	var out []int
	if step > 0 {
		start, stop := clamp(lo, 0, 0, n), clamp(hi, n, 0, n)
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
		return out, nil
	}
	start, stop := clamp(lo, n-1, -1, n-1), clamp(hi, -1, -1, n-1)
	for i := start; i > stop; i += step {
		out = append(out, i)
	}
	return out, nil
}

func (e *evaluator) evalCall(n *node, sc *scope) (any, error) {
	// The validator guarantees an identifier callee from the whitelist. A
	// comprehension variable or state field cannot shadow it.
	f, ok := builtins[n.x.name]
	if !ok {
		return nil, fmt.Errorf("%w: call to %q", errUnsupported, n.x.name)
	}
	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := e.eval(a, sc)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return f.call(args)
}

// comprehend runs body once per combination of loop variables, honoring
// each generator's filters.
func (e *evaluator) comprehend(gens []*comprehension, i int, sc *scope, body func(*scope) error) error {
	if i == len(gens) {
		return body(sc)
	}
	g := gens[i]
	src, err := e.eval(g.iter, sc)
	if err != nil {
		return err
	}
	items, err := iterate(src)
	if err != nil {
		return err
	}
	for _, item := range items {
		inner := &scope{vars: map[string]any{g.target.name: item}, parent: sc}
		keep := true
		for _, cond := range g.ifs {
			v, err := e.eval(cond, inner)
			if err != nil {
				return err
			}
			if !truthy(v) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		if err := e.comprehend(gens, i+1, inner, body); err != nil {
			return err
		}
	}
	return nil
}
