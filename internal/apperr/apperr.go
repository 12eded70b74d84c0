// Package apperr defines the error kinds surfaced by the archival engine and
// wraps causes with an eris origin chain (operation, entity, underlying
// file/SQL error) so callers can both match on kind via errors.Is and print
// a full trace via eris.ToString.
package apperr

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind sentinels. Compare with errors.Is(err, apperr.NotFound), etc.
var (
	NotFound     = eris.New("not found")
	Invariant    = eris.New("invariant violated")
	InputShape   = eris.New("invalid input shape")
	Conflict     = eris.New("conflict")
	IO           = eris.New("io error")
	Ambiguous    = eris.New("ambiguous")
	NotSupported = eris.New("not supported")
)

// taggedError pairs a kind sentinel with an eris-wrapped origin chain.
type taggedError struct {
	kind error
	err  error
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Unwrap() error { return e.err }

// Is reports whether target is this error's kind sentinel, letting
// errors.Is(err, apperr.NotFound) work without unwrapping the full chain.
func (e *taggedError) Is(target error) bool { return target == e.kind }

// New builds a fresh error of the given kind with a formatted message and no
// wrapped cause.
func New(kind error, format string, args ...any) error {
	return &taggedError{kind: kind, err: eris.New(fmt.Sprintf(format, args...))}
}

// Wrap attaches kind and an operation/entity description to cause. Returns
// nil if cause is nil, so callers can write `return apperr.Wrap(...)` right
// after a fallible call without a separate nil check.
func Wrap(kind error, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &taggedError{kind: kind, err: eris.Wrap(cause, fmt.Sprintf(format, args...))}
}

// Trace renders the full origin chain (operation, entity, file) for
// diagnostics. Falls back to err.Error() for errors not produced by this
// package.
func Trace(err error) string {
	if err == nil {
		return ""
	}
	var te *taggedError
	if errors.As(err, &te) {
		return eris.ToString(te.err, true)
	}
	return eris.ToString(err, true)
}
