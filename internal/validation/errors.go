// Package validation holds the per-operation error raised when a requested
// field or argument does not exist or is malformed.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Error reports a malformed operation. Path locates the offending
// selection or argument, e.g. "movies.where.title_GT".
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Errorf builds a validation error at path.
func Errorf(path string, format string, args ...any) *Error {
	return &Error{Path: path, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is (or wraps) a validation error.
func Is(err error) bool {
	var verr *Error
	return errors.As(err, &verr)
}

// Join appends a path segment.
func Join(path string, segment string) string {
	switch {
	case path == "":
		return segment
	case segment == "":
		return path
	case strings.HasPrefix(segment, "["):
		return path + segment
	default:
		return path + "." + segment
	}
}

// Index appends a list index to a path.
func Index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

// Diagnostic is a non-fatal compile message, e.g. use of a deprecated filter form.
type Diagnostic struct {
	Category string
	Path     string
	Message  string
}

// CategoryDeprecation marks diagnostics for deprecated input forms.
const CategoryDeprecation = "deprecation"
