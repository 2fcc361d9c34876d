// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrInvalidMapping is returned when a column mapping is empty or repeats a column.
var ErrInvalidMapping = errors.New("invalid column mapping")

// ErrProfileNotFound is returned by the profile store for unknown names.
type ErrProfileNotFound struct {
	Name string
}

func (e *ErrProfileNotFound) Error() string {
	return fmt.Sprintf("profile %q not found", e.Name)
}

// Helper constructor
func NewProfileNotFound(name string) error {
	return &ErrProfileNotFound{Name: name}
}

// LoadError marks a failure that must abort a run before any send:
// the profile store, the recipient source or the ledger could not be read.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func NewLoadError(source string, err error) error {
	return &LoadError{Source: source, Err: err}
}
