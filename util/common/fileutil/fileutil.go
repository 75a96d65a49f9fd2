package fileutil

import (
	"os"
	"strings"

	"github.com/zerocat/extension-mirror/util/common/errors"
)

// validatePath checks if a path is usable.
func validatePath(path string) error {
	if path == "" {
		return errors.NewValidationError("path", "path cannot be empty")
	}
	if strings.ContainsAny(path, "<>|?*") {
		return errors.NewValidationError("path", "path contains invalid characters")
	}
	return nil
}

// ReadFile reads the entire file and returns its contents.
// It validates the path and checks if the file exists and is readable.
func ReadFile(path string) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewFileError(path, "stat", err)
	}
	if info.IsDir() {
		return nil, errors.NewValidationError("path", "path is a directory, expected a file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFileError(path, "read", err)
	}
	return data, nil
}

// ReadOptionalFile is ReadFile that reports a missing file as nil content.
func ReadOptionalFile(path string) ([]byte, error) {
	if !Exists(path) {
		return nil, nil
	}
	return ReadFile(path)
}

// Exists checks if a file or directory exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir checks if the path is a directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile checks if the path is a regular file
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
