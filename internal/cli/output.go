package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes for the CLI.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The input could not be read or the query failed while running
	ExitCommandError = 2 // Command error (bad flags, missing files, query syntax, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// outputTarget returns the writer results go to and a function that
// finishes it. An empty path means stdout.
func outputTarget(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path) //nolint:gosec // Output path is chosen by the user
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to create output file", err)
	}
	return f, f.Close, nil
}
