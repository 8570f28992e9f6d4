package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed ids, unknown fields and ill-typed values.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an id with no log or projection rows.
	ErrNotFound = errors.New("not found")
	// ErrDatabase marks connectivity and constraint failures.
	ErrDatabase = errors.New("database error")
	// ErrConflict is only returned under ConflictPolicyReject.
	ErrConflict = errors.New("precondition conflict")
)

// ConflictError names the fields whose precondition token did not match.
type ConflictError struct {
	EntityType string
	ID         string
	Conflicts  []Conflict
}

func (e *ConflictError) Error() string {
	fields := make([]string, len(e.Conflicts))
	for i, conflict := range e.Conflicts {
		fields[i] = conflict.Field
	}
	return fmt.Sprintf("%s %s: stale precondition on %s", e.EntityType, e.ID, strings.Join(fields, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
