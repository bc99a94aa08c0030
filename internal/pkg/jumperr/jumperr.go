// Package jumperr defines the jump's error taxonomy (spec.md §7). Every
// error that escapes to internal/pkg/cli is wrapped in a *Error carrying a
// Kind, so the CLI layer can render the right one-line "Error: …" plus a
// contextual hint without type-switching on ad-hoc error strings.
package jumperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind names one of the fatal error categories from spec.md §7.
type Kind string

const (
	Format    Kind = "FormatError"
	Integrity Kind = "IntegrityError"
	Config    Kind = "ConfigError"
	Platform  Kind = "PlatformError"
	Dotenv    Kind = "DotenvError"
	Binding   Kind = "BindingError"
	Selector  Kind = "SelectorError"
	IO        Kind = "IOError"
)

// Error is a Kind-tagged, hint-carrying error.
type Error struct {
	Kind string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error from format and a (via github.com/pkg/errors'
// Errorf, matching the teacher's stack-carrying error idiom in
// pkg/util/archive) as a jumperr of the given kind, with an optional
// one-line hint shown beneath the error.
func New(kind Kind, hint string, format string, a ...interface{}) *Error {
	return &Error{
		Kind: string(kind),
		Hint: hint,
		Err:  errors.Errorf(format, a...),
	}
}

// Wrap attaches a Kind and hint to an existing error.
func Wrap(kind Kind, hint string, err error, context string) *Error {
	return &Error{
		Kind: string(kind),
		Hint: hint,
		Err:  errors.Wrap(err, context),
	}
}

// As reports whether err (or something it wraps) is a *Error, and if so the
// unwrapped value.
func As(err error) (*Error, bool) {
	var je *Error
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}
