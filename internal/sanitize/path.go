// Package sanitize validates untrusted file paths.
package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AvishManiar21/user-story-automation/internal/document"
)

var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// ValidatePath rejects paths with ".." segments and returns the cleaned
// absolute path. When allowedRoot is set the path must resolve inside it.
func ValidatePath(path, allowedRoot string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}
	if hasParentSegment(path) {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if allowedRoot == "" {
		return absPath, nil
	}
	absRoot, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed root: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes %s", ErrPathTraversal, absRoot)
	}
	return absPath, nil
}

// DocumentPath validates a requirements document path supplied by a client.
// The extension must be one document.Allowed accepts.
func DocumentPath(path, allowedRoot string) (string, error) {
	abs, err := ValidatePath(path, allowedRoot)
	if err != nil {
		return "", err
	}
	if !document.Allowed(abs) {
		return "", fmt.Errorf("%w: %s", document.ErrUnsupportedType, filepath.Base(abs))
	}
	return abs, nil
}

func hasParentSegment(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
