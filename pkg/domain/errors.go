package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrArtifactNotFound is returned by stores for keys that were never written.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrNotSuspended is returned when Resume is called on a run that is not
	// waiting for input.
	ErrNotSuspended = errors.New("workflow is not awaiting input")
	// ErrFinished is returned when a terminated or failed run is driven again.
	ErrFinished = errors.New("workflow has finished")
	// ErrUnknownField is returned in strict mode for updates naming fields the
	// state does not declare.
	ErrUnknownField = errors.New("unknown state field")
)

// CompileError reports a malformed template or an unresolved reference.
type CompileError struct {
	Path string // location inside the template, e.g. "nodes.review.next"
	Msg  string
	Err  error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// MissingVariableError reports a ${name} placeholder with no binding.
type MissingVariableError struct {
	Name string
	Path string
}

func (e *MissingVariableError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("missing variable %q", e.Name)
	}
	return fmt.Sprintf("missing variable %q at %s", e.Name, e.Path)
}

// TypeMismatchError reports an update whose values violate the declared
// state types. No part of such an update is applied.
type TypeMismatchError struct {
	Fields []string
	Err    error
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch in %s: %v", strings.Join(e.Fields, ", "), e.Err)
}

func (e *TypeMismatchError) Unwrap() error { return e.Err }

// RuntimeNodeError wraps a failure raised by a node handler.
type RuntimeNodeError struct {
	Node string
	Err  error
}

func (e *RuntimeNodeError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
}

func (e *RuntimeNodeError) Unwrap() error { return e.Err }

// RecoveryExhaustedError is fatal: neither the recent history nor the
// checkpoint holds a state that satisfies the schema.
type RecoveryExhaustedError struct {
	Tried []string
	Err   error
}

func (e *RecoveryExhaustedError) Error() string {
	msg := "no valid snapshot or checkpoint to recover from"
	if len(e.Tried) > 0 {
		msg += " (tried " + strings.Join(e.Tried, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecoveryExhaustedError) Unwrap() error { return e.Err }
