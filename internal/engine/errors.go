package engine

import (
	"context"
	"errors"
	"fmt"

	"editgate/internal/descriptor"
	"editgate/internal/groups"
)

// User-visible resolution failures. All are terminal for the edit attempt.
var (
	ErrNoPermission   = errors.New("You do not have permission to create a note")
	ErrInvalidDefault = errors.New("Default reader is not in the list of readers")
	ErrParentMismatch = errors.New("Can not create note, readers must match parent note")
)

// FieldError attributes a failure to the readers or signatures field.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Category names the failure class of err for logs, metrics and API codes.
func Category(err error) string {
	var le *groups.LookupError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoPermission):
		return "no_permission"
	case errors.Is(err, ErrInvalidDefault):
		return "invalid_default"
	case errors.Is(err, ErrParentMismatch):
		return "parent_mismatch"
	case errors.Is(err, descriptor.ErrUnsupportedDescriptor):
		return "unsupported_descriptor"
	case errors.As(err, &le):
		return "lookup_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal_error"
	}
}

// Message returns the user-facing text of a resolution failure without the
// field prefix.
func Message(err error) string {
	for _, sentinel := range []error{ErrNoPermission, ErrInvalidDefault, ErrParentMismatch} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
