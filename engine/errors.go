package engine

import (
	"errors"
	"strings"
)

// ErrInvalidConfig is wrapped by every configuration rejection.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError describes one rejected configuration value.
type ConfigError struct {
	// Field is the offending path, e.g. "Metrics[0].Aggregation".
	Field string
	// Rule is the violated rule, e.g. "oneof" or "orderby_column".
	Rule    string
	Message string
}

func (e ConfigError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationError collects every ConfigError found in one configuration.
type ValidationError struct {
	Errors []ConfigError
}

func newValidationError(errs ...ConfigError) *ValidationError {
	return &ValidationError{Errors: errs}
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return ErrInvalidConfig.Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, ce := range e.Errors {
		msgs[i] = ce.Error()
	}
	return ErrInvalidConfig.Error() + ": " + strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalidConfig) succeed.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }
