// Package apperr defines the error-code taxonomy the core commits to at its
// boundary. The HTTP envelope that eventually carries these codes is outside
// this module's scope; what matters here is that every component raises one
// of a fixed set of codes so a caller one layer up can map them consistently.
package apperr

import (
	"errors"
	"fmt"
)

// Code is one of the fixed set of error codes the core surfaces upward.
type Code string

const (
	// InvalidType marks a value that was structurally the wrong JSON type
	// (e.g. a non-object document) before any semantic check ran.
	InvalidType Code = "INVALID_TYPE"
	// BadRequest marks a structurally well-formed but semantically rejected
	// request: duplicate tag on create, out-of-range index on reorder, etc.
	BadRequest Code = "BAD_REQUEST"
	// NotFound marks a missing tag, index, backup id, or config file.
	NotFound Code = "NOT_FOUND"
	// ConfigValidationError marks a candidate document the write path
	// rejected because validation failed; the message joins the validator's
	// messages.
	ConfigValidationError Code = "CONFIG_VALIDATION_ERROR"
	// SingboxValidationError marks a candidate the external binary's `check`
	// subcommand rejected.
	SingboxValidationError Code = "SINGBOX_VALIDATION_ERROR"
	// ProcessError marks a supervisor failure: spawn failed, child died
	// immediately, or an operation was requested against a dead child.
	ProcessError Code = "PROCESS_ERROR"
	// Internal marks anything else: lock timeouts, I/O failures, and other
	// conditions the caller cannot act on except by retrying.
	Internal Code = "INTERNAL_ERROR"
)

// Error is the error type every core component returns at its public
// boundary. Internal helper functions may return plain errors; anything
// crossing a component boundary should be wrapped into one of these.
type Error struct {
	Code    Code
	Message string
	// Path identifies the offending field for input-shape errors, e.g.
	// "inbounds[2].tag". Empty when not applicable.
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying cause as its unwrap target.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// WithPath returns a copy of e with Path set, used for input-shape errors
// where the offending field path is known only at the call site.
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, and
// Internal otherwise.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Internal
}

// Is reports whether err is (or wraps) an *Error with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
