package rule

import (
	"errors"
	"fmt"
)

// ErrInvalidRule is matched by every *ValidationError.
var ErrInvalidRule = errors.New("invalid rule")

// ValidationError reports a rule parameter outside its domain.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %s: %s: %s", e.Kind, e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidRule.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRule
}

func invalid(kind Kind, field, format string, args ...any) error {
	return &ValidationError{Kind: kind, Field: field, Reason: fmt.Sprintf(format, args...)}
}
