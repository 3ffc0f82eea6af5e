// Package errorz holds the error kinds shared by the identity and Q&A services.
package errorz

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a missing or empty required field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced record that does not exist.
	ErrNotFound = errors.New("not found")
)

// Required reports a missing required field.
func Required(field string) error {
	return fmt.Errorf("%w: %s is required", ErrValidation, field)
}

// NotFound reports a missing record of kind what.
func NotFound(what string, id uint) error {
	return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
}
