package report

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed fallback.md
var defaultFallback string

// DefaultFallback returns the fallback report shipped with the binary.
func DefaultFallback() string {
	return defaultFallback
}

// LoadFallback reads the fallback report at path, or returns the built-in
// one when path is empty. The file is returned verbatim.
func LoadFallback(path string) (string, error) {
	if path == "" {
		return defaultFallback, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read fallback report %s: %w", path, err)
	}
	return string(raw), nil
}
