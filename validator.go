package tablequery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// validator handles validation logic for Builder
type validator struct{}

// newValidator creates a new validator instance
func newValidator() *validator {
	return &validator{}
}

// validateQueriesGiven checks that at least one query source is configured
func (v *validator) validateQueriesGiven(texts, files []string) error {
	if len(texts) == 0 && len(files) == 0 {
		return ErrNoQueries
	}
	return nil
}

// validateQueryFile validates the path of a query file
func (v *validator) validateQueryFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: query file path cannot be empty", ErrUsage)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: query file %s", ErrFileNotFound, path)
		}
		return sourceError("stat", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: query file %s is a directory", ErrUsage, path)
	}
	return nil
}

// validatePath validates the path of a table file
func (v *validator) validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path cannot be empty", ErrUsage)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return sourceError("stat", path, err)
	}
	if info.IsDir() {
		return NewErrorContext("validate", path).WithDetails("path is a directory").Error(ErrUnsupportedFormat)
	}
	return nil
}

// validateReader validates a reader input
func (v *validator) validateReader(reader any, name string) error {
	if reader == nil {
		return fmt.Errorf("%w: reader cannot be nil", ErrUsage)
	}
	if name == "" {
		return fmt.Errorf("%w: a name must be specified for reader input", ErrUsage)
	}
	return nil
}

// validateFSFile validates a file inside an fs.FS
func (v *validator) validateFSFile(fsys fs.FS, name string) error {
	if fsys == nil {
		return fmt.Errorf("%w: FS cannot be nil", ErrUsage)
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return sourceError("stat", name, err)
	}
	if info.IsDir() {
		return NewErrorContext("validate", name).WithDetails("path is a directory").Error(ErrUnsupportedFormat)
	}
	return nil
}
