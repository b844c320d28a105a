// Package security holds callback credential checks and path validation for
// operator-supplied files.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// shellMeta are rejected outright in operator-supplied paths.
const shellMeta = ";&|$`(){}<>!\n\r"

// ValidateFilePath returns an absolute, cleaned form of path with symlinks
// resolved when the file exists. Paths with shell metacharacters are refused.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("file path cannot be empty")
	}
	if i := strings.IndexAny(path, shellMeta); i >= 0 {
		return "", fmt.Errorf("file path contains forbidden character %q: %s", path[i], path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve file path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return abs, nil
	case err != nil:
		return "", fmt.Errorf("resolve file path: %w", err)
	}
	return resolved, nil
}

// SafeReadFile reads path after ValidateFilePath accepts it.
func SafeReadFile(path string) ([]byte, error) {
	clean, err := ValidateFilePath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(clean) // #nosec G304 -- validated above
}
