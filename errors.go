package testcode

import (
	"errors"
	"fmt"
)

// RunError is an execution error: spawn failure, missing input file,
// failed extraction and the like. Run errors are always caught at the test
// boundary, downgrade the affected case to failed, and never abort sibling
// cases.
type RunError struct {
	Err error
}

func (e *RunError) Error() string {
	return e.Err.Error()
}

// Unwrap implements the errors.Unwrap interface.
func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a new RunError.
func NewRunError(err error) *RunError {
	return &RunError{Err: err}
}

// NewRunErrorf creates a new RunError from a format string.
func NewRunErrorf(format string, args ...interface{}) *RunError {
	return &RunError{Err: fmt.Errorf(format, args...)}
}

// IsRunError checks if the error is or wraps a RunError.
func IsRunError(err error) bool {
	var runErr *RunError
	return err != nil && errors.As(err, &runErr)
}

// ConfigError is a configuration error: malformed or missing settings.
// Configuration errors are never caught; the whole invocation aborts with
// exit code 2 before any test runs.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(err error) *ConfigError {
	return &ConfigError{Err: err}
}

// NewConfigErrorf creates a new ConfigError from a format string.
func NewConfigErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// IsConfigError checks if the error is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return err != nil && errors.As(err, &cfgErr)
}
