package dotfiles

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Delete when the name is not set.
	ErrNotFound = errors.New("not found")

	// ErrInvalidName is returned when a name cannot be used in a shell.
	ErrInvalidName = errors.New("invalid name")
)

// NameError reports a rejected variable or alias name.
type NameError struct {
	Kind   string // "var" or "alias"
	Name   string
	Reason string
}

// Error implements the error interface.
func (e *NameError) Error() string {
	return fmt.Sprintf("invalid %s name %q: %s", e.Kind, e.Name, e.Reason)
}

// Is reports whether target is ErrInvalidName.
func (e *NameError) Is(target error) bool { return target == ErrInvalidName }
