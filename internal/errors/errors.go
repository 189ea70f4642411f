// Package errors defines sentinel error types shared across layers.
// Handlers match them with errors.Is to pick a response status.
package errors

import "fmt"

// ErrNotFound matches any *NotFoundError.
var ErrNotFound = &NotFoundError{}

// NotFoundError indicates a requested resource does not exist.
type NotFoundError struct {
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return "resource not found"
}

// Is reports whether target is a *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{Resource: resource, Message: message}
}

// ErrValidation matches any *ValidationError.
var ErrValidation = &ValidationError{}

// ValidationError indicates client input failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field: %s", e.Field)
	}
	return "validation error"
}

// Is reports whether target is a *ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ErrConflict matches any *ConflictError.
var ErrConflict = &ConflictError{}

// ConflictError indicates a uniqueness conflict (e.g. an admin email that is
// already registered).
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s already exists", e.Resource)
	}
	return "resource conflict"
}

// Is reports whether target is a *ConflictError.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

// NewConflictError creates a ConflictError for the given resource.
func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

// ErrUnauthorized matches any *UnauthorizedError.
var ErrUnauthorized = &UnauthorizedError{}

// UnauthorizedError indicates a missing, invalid, or expired credential.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// Is reports whether target is an *UnauthorizedError.
func (e *UnauthorizedError) Is(target error) bool {
	_, ok := target.(*UnauthorizedError)
	return ok
}

// NewUnauthorizedError creates an UnauthorizedError with a custom message.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}
