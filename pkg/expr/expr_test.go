package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() map[string]any {
	return map[string]any{
		"count":    5,
		"ratio":    0.5,
		"items":    []any{1, 2, 3},
		"scores":   []int{1, 2, 3, 4},
		"name":     "bob",
		"tags":     []string{"a", "b"},
		"greeting": "hello",
		"meta":     map[string]any{"k": "v", "nested": map[string]any{"n": 1}},
		"value":    nil,
		"flag":     true,
		"empty":    []any{},
	}
}

func TestEvaluate_Basics(t *testing.T) {
	got, err := Evaluate("count > 3", map[string]any{"count": 5})
	require.NoError(t, err)
	assert.Equal(t, True, got)

	got, err = Evaluate("count < 3", map[string]any{"count": 5})
	require.NoError(t, err)
	assert.Equal(t, False, got)
}

func TestEvaluate_Table(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		// literals and comparisons
		{"1 == 1.0", True},
		{"True == 1", True},
		{"'a' < 'b'", True},
		{"[1, 2] < [1, 3]", True},
		{"count >= 5 and count <= 5", True},
		{"count != 5", False},
		{"-1 in [-1]", True},
		{"+ratio == -(-0.5)", True},
		{"count > -count", True},
		{"ratio == 0.5", True},
		{"None", False},

		// chains
		{"1 < count < 10", True},
		{"1 < count < 3", False},
		{"5 == count == 5.0", True},

		// missing names
		{"missing", False},
		{"missing == False", True},
		{"not missing", True},
		{"true", True},

		// boolean operators
		{"flag and count", True},
		{"empty or name", True},
		{"not flag", False},
		{"not (count > 3 and flag)", False},

		// membership and identity
		{"'a' in tags", True},
		{"'z' not in tags", True},
		{"'ell' in greeting", True},
		{"'k' in meta", True},
		{"'x' in meta", False},
		{"value is None", True},
		{"flag is True", True},
		{"count is not None", True},

		// subscripts and slices
		{"items[0] == 1", True},
		{"items[-1] == 3", True},
		{"items[1:] == [2, 3]", True},
		{"items[:-1] == [1, 2]", True},
		{"items[::-1] == [3, 2, 1]", True},
		{"items[::2] == [1, 3]", True},
		{"name[0] == 'b'", True},
		{"greeting[1:3] == 'el'", True},
		{"meta['k'] == 'v'", True},
		{"meta['nested']['n'] == 1", True},

		// functions
		{"len(items) == 3", True},
		{"len(greeting) == 5", True},
		{"upper(name) == 'BOB'", True},
		{"lower('ABC') == 'abc'", True},
		{"str(count) == '5'", True},
		{"str(1.0) == '1.0'", True},
		{"str(None) == 'None'", True},
		{"str([1, 'a']) == \"[1, 'a']\"", True},
		{"int('42') == 42", True},
		{"int(2.9) == 2", True},
		{"float('1.5') > 1", True},
		{"bool([])", False},
		{"list('ab') == ['a', 'b']", True},
		{"dict([['a', 1]])['a'] == 1", True},
		{"all([1, True, 'x'])", True},
		{"any([0, '', None])", False},
		{"sum(scores) == 10", True},
		{"sum([0.5, 0.5]) == 1", True},
		{"max(scores) == 4", True},
		{"min(3, 1, 2) == 1", True},
		{"list(map(str, [1, 2])) == ['1', '2']", True},
		{"len(filter(None, [0, 1, 2])) == 2", True},
		{"map(upper, tags) == ['A', 'B']", True},

		// comprehensions
		{"len([s for s in scores if s > 2]) == 2", True},
		{"all(s > 0 for s in scores)", True},
		{"any(t == 'c' for t in tags)", False},
		{"[x for x in items if x != 2] == [1, 3]", True},
		{"[[a, b] for a in [1, 2] for b in ['x']] == [[1, 'x'], [2, 'x']]", True},
		{"{k: len(k) for k in ['ab', 'c']} == {'ab': 2, 'c': 1}", True},
		{"len({t for t in ['a', 'a', 'b']}) == 2", True},
	}

	state := testState()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_ShortCircuit(t *testing.T) {
	state := testState()

	// items[10] would fail if it were evaluated.
	for _, e := range []string{
		"False and items[10]",
		"flag or items[10]",
		"1 > count < items[10]",
		"missing and len(5)",
	} {
		_, err := Evaluate(e, state)
		assert.NoError(t, err, e)
	}
}

func TestEvaluate_RuntimeErrors(t *testing.T) {
	state := testState()
	for _, e := range []string{
		"items[10]",
		"len(5)",
		"1 < 'a'",
		"meta['missing']",
		"upper(count)",
		"1 in count",
		"max([])",
	} {
		_, err := Evaluate(e, state)
		var evalErr *EvalError
		assert.True(t, errors.As(err, &evalErr), "%s: got %v", e, err)
	}
}

func TestValidate_Security(t *testing.T) {
	forbidden := []string{
		"import os",
		"from os import path",
		"lambda x: x",
		"(lambda: 1)()",
		"__import__('os')",
		"open('/etc/passwd')",
		"eval('1')",
		"name.upper()",
		"x.__class__",
		"count + 1",
		"count * 2",
		"2 ** 8",
		"~count",
		"a if b else c",
		"f'{name}'",
		"(1, 2)",
		"{1, 2}",
		"items[0, 1]",
		"len(x=1)",
		"len(*items)",
		"(y := 1)",
		"x = 1",
		"count += 1",
		"def f(): pass",
		"class A: pass",
		"del items",
		"[x for x, y in pairs]",
		"{**meta}",
		"getattr(name, 'upper')",
		"items[0]()",
	}

	for _, e := range forbidden {
		t.Run(e, func(t *testing.T) {
			err := Validate(e)
			var secErr *SecurityError
			require.True(t, errors.As(err, &secErr), "got %v", err)
			assert.ErrorIs(t, err, ErrForbidden)

			_, err = Evaluate(e, testState())
			assert.ErrorAs(t, err, &secErr)
		})
	}
}

func TestValidate_Syntax(t *testing.T) {
	for _, e := range []string{
		"",
		"count >",
		"(",
		"[1, 2",
		"'abc",
		"count $ 2",
		"1 2",
		"import",
		"and count",
		"items[",
		"a if b",
	} {
		t.Run(e, func(t *testing.T) {
			err := Validate(e)
			var synErr *SyntaxError
			assert.True(t, errors.As(err, &synErr), "got %v", err)
		})
	}
}

func TestValidate_Allowed(t *testing.T) {
	for _, e := range []string{
		"count > 3",
		"not done and 'x' in tags",
		"len([m for m in messages if m['role'] == 'user']) > 5",
		"items[1:2:1]",
		"max(map(int, ['1', '2'])) == 2",
		"{'a': 1}",
		"[]",
		"-1",
		"score > -1",
		"+ratio < -limit",
	} {
		assert.NoError(t, Validate(e), e)
	}
}

func TestProgram_Names(t *testing.T) {
	p := MustCompile("len([m for m in messages if m in seen]) > limit and map(str, xs)")
	assert.Equal(t, []string{"messages", "seen", "limit", "xs"}, p.Names())
}

func TestProgram_Reuse(t *testing.T) {
	p, err := Compile("count > 3")
	require.NoError(t, err)

	ok, err := p.Eval(map[string]any{"count": 4})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Eval(map[string]any{"count": 1})
	require.NoError(t, err)
	assert.False(t, ok)
}
