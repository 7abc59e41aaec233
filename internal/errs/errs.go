// Package errs defines the error taxonomy for the pipeline and its mapping
// to CLI exit codes.
package errs

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Category classifies an error for propagation and exit-code purposes.
type Category string

const (
	// Validation covers bad input such as a malformed URL. Never retried.
	Validation Category = "validation"
	// Network covers timeouts, connection failures, and 5xx responses.
	// Transient, governed by the retry policy.
	Network Category = "network"
	// FileSystem covers permission and disk errors. Phase-level, not retried.
	FileSystem Category = "filesystem"
	// Configuration covers bad concurrency or timeout values. Aborts before
	// any phase starts.
	Configuration Category = "configuration"
	// Application covers unexpected internal failures. Aborts the run.
	Application Category = "application"
)

// ExitCode maps a category to the CLI exit code contract.
func (c Category) ExitCode() int {
	switch c {
	case Validation:
		return 1
	case Network:
		return 2
	case FileSystem:
		return 3
	case Configuration:
		return 4
	case Application:
		return 5
	default:
		return 5
	}
}

// Error is a categorized error with an optional remediation hint.
type Error struct {
	Category Category
	Hint     string
	Err      error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a categorized error from a message.
func New(cat Category, msg string) *Error {
	return &Error{Category: cat, Err: eris.New(msg)}
}

// Newf creates a categorized error from a format string.
func Newf(cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Err: eris.Errorf(format, args...)}
}

// Wrap wraps err with a message and a category. Returns nil if err is nil.
func Wrap(cat Category, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Category: cat, Err: eris.Wrap(err, msg)}
}

// WithHint attaches a remediation hint shown to the user on fatal errors.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// CategoryOf returns the category of err, or Application when uncategorized.
func CategoryOf(err error) Category {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return Application
}

// HintOf returns the remediation hint attached to err, if any.
func HintOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Hint
	}
	return ""
}

// Is reports whether err carries the given category.
func Is(err error, cat Category) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category == cat
	}
	return false
}
