package core

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrInvalidInterval  = errors.New("interval must be positive")
	ErrInvalidFrequency = errors.New("invalid frequency")
)

// ValidationError reports input rejected before any mutation took place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError reports an operation attempted on an entity whose lifecycle
// state does not permit it. The operation is a no-op.
type StateError struct {
	Entity string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

// ConflictError reports a unique-constraint violation. Callers treat it as
// "already exists", not as a failure.
type ConflictError struct {
	Entity string
	Key    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
