// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the request collides with existing state
// (duplicate key, or a role that forbids the operation on this entity).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates malformed or out-of-range input.
var ErrValidation = errors.New("validation error")

// ErrUnauthorized indicates the caller lacks the role the operation requires.
var ErrUnauthorized = errors.New("unauthorized")

// ErrStateMismatch indicates the operation is not allowed in the entity's current lifecycle state.
var ErrStateMismatch = errors.New("state mismatch")

// ErrFunds indicates an escrow movement could not be funded or executed.
var ErrFunds = errors.New("funds error")

// CodeError is a stable, machine-readable failure code that belongs to one
// of the sentinel kinds above. errors.Is matches both the code itself and its kind.
type CodeError struct {
	Code string
	kind error
}

// NewCode registers a code under the given kind sentinel.
func NewCode(code string, kind error) *CodeError {
	return &CodeError{Code: code, kind: kind}
}

func (e *CodeError) Error() string { return e.Code }

// Unwrap returns the kind sentinel.
func (e *CodeError) Unwrap() error { return e.kind }

// Kind returns the kind sentinel the code belongs to.
func (e *CodeError) Kind() error { return e.kind }

// Code extracts the failure code from err, or "" when err carries none.
func Code(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
