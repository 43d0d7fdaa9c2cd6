// Package expr implements the condition language used to route between
// workflow nodes.
//
// Conditions are single expressions in a small, Python-flavoured grammar:
// literals, state field names, comparisons (including chained ones, `in`,
// `not in`, `is`, `is not`), `and`/`or`/`not`, subscripts and slices,
// comprehensions and calls to a fixed set of pure functions
// (len, upper, lower, str, int, float, bool, list, dict, all, any, filter,
// map, sum, max, min).
//
// Every expression is parsed into a private tree and checked structurally
// before it can be evaluated. Anything outside the grammar above, such as
// attribute access, arithmetic, lambdas, imports or assignments, is rejected
// with a *SecurityError; text that does not parse yields a *SyntaxError.
//
//	result, err := expr.Evaluate("count > 3 and 'urgent' in tags", state)
//	// result is expr.True or expr.False
//
// A name that is not present in the state evaluates to false.
package expr
