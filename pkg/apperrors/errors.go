package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyMember = errors.New("user is already a member of the project")
	ErrInvalidRole   = errors.New("invalid role")
	ErrLastAdmin     = errors.New("cannot remove or demote the last admin of a project")

	// ErrUnauthorized is returned when the authorization guard denies an action.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation marks malformed input rejected before any store call.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration marks a violated seed data contract (e.g. no "Admin" role).
	// It is not recoverable by the caller.
	ErrConfiguration = errors.New("configuration fault")

	// ErrStoreFailure marks a transient or integrity failure in the persistence layer.
	ErrStoreFailure = errors.New("store failure")
)

// StoreFailure wraps a persistence error so that it matches both ErrStoreFailure
// and the underlying cause.
func StoreFailure(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, ErrStoreFailure, err)
}

// Validation returns an ErrValidation carrying a field-level message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
