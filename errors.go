package tablequery

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by this package wraps one of them.
var (
	// ErrSource indicates that the row source could not be opened, read or decoded
	ErrSource = errors.New("tablequery: source error")

	// ErrFormat indicates a row that does not match the declared header or column count
	ErrFormat = errors.New("tablequery: format error")

	// ErrUsage indicates a programming error such as using a closed table
	ErrUsage = errors.New("tablequery: usage error")
)

// Specific errors
var (
	// ErrTableClosed is returned when rows or size are requested from a closed table
	ErrTableClosed = fmt.Errorf("%w: table is closed", ErrUsage)

	// ErrExecutionClosed is returned when a closed execution is asked to run
	ErrExecutionClosed = fmt.Errorf("%w: execution is closed", ErrUsage)

	// ErrNoQueries is returned when an execution is created without queries
	ErrNoQueries = fmt.Errorf("%w: no queries given", ErrUsage)

	// ErrNoSource is returned when neither a path, a reader nor a FROM clause names the input
	ErrNoSource = fmt.Errorf("%w: no input source given", ErrUsage)

	// ErrDuplicateColumnName is returned when a header contains the same column twice
	ErrDuplicateColumnName = fmt.Errorf("%w: duplicate column name", ErrFormat)

	// ErrFieldCount is returned when a row has a different number of fields than the header
	ErrFieldCount = fmt.Errorf("%w: wrong number of fields", ErrFormat)

	// ErrUnsupportedFormat indicates an unsupported file format
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported file format", ErrFormat)

	// ErrFileNotFound indicates file not found
	ErrFileNotFound = fmt.Errorf("%w: file not found", ErrSource)

	// ErrUnknownEncoding indicates an encoding name that could not be resolved
	ErrUnknownEncoding = fmt.Errorf("%w: unknown character encoding", ErrSource)

	// ErrMemoryLimit indicates memory limit exceeded while buffering a table
	ErrMemoryLimit = errors.New("tablequery: memory limit exceeded")
)

// ErrorContext provides context for where an error occurred
type ErrorContext struct {
	Operation string
	FilePath  string
	Details   string
}

// NewErrorContext creates a new error context
func NewErrorContext(operation, filePath string) *ErrorContext {
	return &ErrorContext{
		Operation: operation,
		FilePath:  filePath,
	}
}

// WithDetails adds details to the error context
func (ec *ErrorContext) WithDetails(details string) *ErrorContext {
	ec.Details = details
	return ec
}

// Error creates a formatted error with context
func (ec *ErrorContext) Error(baseErr error) error {
	var parts []string
	parts = append(parts, fmt.Sprintf("tablequery: %s failed", ec.Operation))

	if ec.FilePath != "" {
		parts = append(parts, "file: "+ec.FilePath)
	}

	if ec.Details != "" {
		parts = append(parts, "details: "+ec.Details)
	}

	context := strings.Join(parts, ", ")
	if baseErr != nil {
		return fmt.Errorf("%s: %w", context, baseErr)
	}
	return fmt.Errorf("%s", context)
}

// sourceError wraps err as an ErrSource unless it already is one.
func sourceError(operation, name string, err error) error {
	if errors.Is(err, ErrSource) || errors.Is(err, ErrFormat) {
		return NewErrorContext(operation, name).Error(err)
	}
	return NewErrorContext(operation, name).Error(fmt.Errorf("%w: %w", ErrSource, err))
}
