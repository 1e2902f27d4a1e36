package errors

import (
	"math"
	"path/filepath"
	"strings"
	"unicode"
)

// ValidateIntRange checks that value lies in [min, max].
// The name is used in the error message (e.g. "slice count").
func ValidateIntRange(name string, value, min, max int) error {
	if value < min || value > max {
		return New(ErrCodeInvalidParameter, "%s must be between %d and %d, got %d", name, min, max, value)
	}
	return nil
}

// ValidateFloatRange checks that value lies in [min, max] and is a real number.
func ValidateFloatRange(name string, value, min, max float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return New(ErrCodeInvalidParameter, "%s must be a finite number", name)
	}
	if value < min || value > max {
		return New(ErrCodeInvalidParameter, "%s must be between %g and %g, got %g", name, min, max, value)
	}
	return nil
}

// ValidateOutputPath validates a path the renderer is asked to write to.
//
// Validation rules:
//   - Path cannot be empty
//   - No null bytes or control characters
//   - Must not name a directory (trailing separator)
//   - Extension, when present, must be .png
func ValidateOutputPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "output path cannot be empty")
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "output path contains invalid characters")
		}
	}

	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return New(ErrCodeInvalidPath, "output path must name a file, not a directory")
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != "" && ext != ".png" {
		return New(ErrCodeInvalidPath, "output must be a .png file, got %q", ext)
	}

	return nil
}

// SanitizeFilename reduces an uploaded filename to a safe basename.
// Path components are dropped and anything outside [A-Za-z0-9._-] becomes '_'.
// An empty result falls back to "upload".
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}
