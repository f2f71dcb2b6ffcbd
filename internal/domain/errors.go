package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every error caused by a login or password that breaks policy.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates that no live record has the requested identifier.
	ErrNotFound = errors.New("person not found")
	// ErrLoginTaken is returned when another live record already holds the login.
	ErrLoginTaken = &ValidationError{Field: "login", Reason: "already registered"}
)

// ValidationError describes which field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
