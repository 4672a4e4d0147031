// Package domain defines core types, interfaces, and errors for the
// experiment grid.
package domain

import "fmt"

// ConfigurationError indicates malformed field specs, options, or credentials.
// Raised before any table work.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// ConnectionError indicates a database connection or authentication failure.
type ConnectionError struct {
	Message string
}

func (e *ConnectionError) Error() string { return e.Message }

// CreationError indicates a database or table creation failure.
type CreationError struct {
	Message string
}

func (e *CreationError) Error() string { return e.Message }

// ParameterCombinationError indicates an invalid or empty combination request.
type ParameterCombinationError struct {
	Message string
}

func (e *ParameterCombinationError) Error() string { return e.Message }

// StructureMismatchError indicates an existing table whose schema disagrees
// with the declared fields. The table is never migrated.
type StructureMismatchError struct {
	Message string
}

func (e *StructureMismatchError) Error() string { return e.Message }

// ExecutionError describes a single experiment's failure. It is recorded
// into that row's error column and does not abort the run.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// ErrConfiguration creates a ConfigurationError with a formatted message.
func ErrConfiguration(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConnection creates a ConnectionError with a formatted message.
func ErrConnection(format string, args ...interface{}) *ConnectionError {
	return &ConnectionError{Message: fmt.Sprintf(format, args...)}
}

// ErrCreation creates a CreationError with a formatted message.
func ErrCreation(format string, args ...interface{}) *CreationError {
	return &CreationError{Message: fmt.Sprintf(format, args...)}
}

// ErrParameterCombination creates a ParameterCombinationError with a
// formatted message.
func ErrParameterCombination(format string, args ...interface{}) *ParameterCombinationError {
	return &ParameterCombinationError{Message: fmt.Sprintf(format, args...)}
}

// ErrStructureMismatch creates a StructureMismatchError with a formatted
// message.
func ErrStructureMismatch(format string, args ...interface{}) *StructureMismatchError {
	return &StructureMismatchError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}
