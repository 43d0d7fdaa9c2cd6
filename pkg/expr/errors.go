package expr

import (
	"errors"
	"fmt"
)

// ErrForbidden is matched by every SecurityError.
var ErrForbidden = errors.New("forbidden expression")

// SyntaxError reports an expression that cannot be parsed.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// SecurityError reports a well-formed expression that uses a construct
// outside the allowed grammar.
type SecurityError struct {
	Expr      string
	Pos       int
	Construct string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("%s is not allowed in %q (offset %d)", e.Construct, e.Expr, e.Pos)
}

func (e *SecurityError) Is(target error) bool { return target == ErrForbidden }

// EvalError reports a failure while evaluating a valid expression, e.g. an
// out of range index or a comparison between incompatible values.
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating %q: %v", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
