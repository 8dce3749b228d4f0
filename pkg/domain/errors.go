package domain

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when the targeted row is absent, including when a
// locked read finds nothing.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError is returned when a required field is missing or invalid.
// Validation happens before any mutation; state is left untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStatusError is returned when a status outside the fixed lifecycle
// set is supplied.
type InvalidStatusError struct {
	Status Status
}

func (e InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", string(e.Status))
}

// InvalidScopeError is returned when a floor or room does not belong to the
// claimed parent.
type InvalidScopeError struct {
	Entity   EntityType
	ID       string
	ParentID string
}

func (e InvalidScopeError) Error() string {
	return fmt.Sprintf("%s %s does not belong to %s", e.Entity, e.ID, e.ParentID)
}

// StoreError wraps an underlying data-store failure. The enclosing
// transaction has been rolled back; no automatic retry is attempted.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e StoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
