package bundler

import (
	"errors"
	"fmt"
)

// ErrUnknownStrategy is returned when a strategy name is not recognized
var ErrUnknownStrategy = errors.New("unknown bundle strategy")

// BundleTooLargeError is returned when the optimized bundle exceeds the size budget
type BundleTooLargeError struct {
	Size int
	Max  int
}

func (e *BundleTooLargeError) Error() string {
	return fmt.Sprintf("bundle size %d bytes exceeds maximum of %d bytes", e.Size, e.Max)
}

// AssemblyImbalanceError is returned when the assembled code has unbalanced
// braces or parentheses. Counts are opening minus closing.
type AssemblyImbalanceError struct {
	Braces int
	Parens int
}

func (e *AssemblyImbalanceError) Error() string {
	return fmt.Sprintf("assembled bundle is unbalanced (braces %+d, parentheses %+d)", e.Braces, e.Parens)
}

// MissingDependencyError is returned when a strategy must include a
// dependency whose source could not be resolved
type MissingDependencyError struct {
	Dependency string
	RequiredBy string
}

func (e *MissingDependencyError) Error() string {
	if e.RequiredBy == "" {
		return fmt.Sprintf("dependency %s could not be resolved", e.Dependency)
	}
	return fmt.Sprintf("dependency %s required by %s could not be resolved", e.Dependency, e.RequiredBy)
}
