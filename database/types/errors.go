//revive:disable-next-line:var-naming // Package name "types" avoids circular imports.
package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by an execution matches exactly one of
// them with errors.Is.
var (
	// ErrAcquisition is returned when no connection could be obtained.
	ErrAcquisition = errors.New("connection acquisition failed")

	// ErrBuild is returned when a statement cannot be built or bound.
	ErrBuild = errors.New("statement build failed")

	// ErrExecution is returned when the database rejects a statement or a
	// fetch fails.
	ErrExecution = errors.New("statement execution failed")

	// ErrMapping is returned when a row mapper fails.
	ErrMapping = errors.New("row mapping failed")

	// ErrCommit is returned when a commit fails.
	ErrCommit = errors.New("commit failed")

	// ErrRollback is reported when a rollback fails.
	ErrRollback = errors.New("rollback failed")

	// ErrClose is reported when releasing a connection or statement fails.
	ErrClose = errors.New("close failed")
)

// Error carries the failing operation alongside its kind and cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError wraps err as a failure of kind during op.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind carried by err, or nil.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
