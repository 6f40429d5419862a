// Package locneterrors defines the error taxonomy shared across the
// overlay: every error that can cross a session boundary carries one of
// these codes so the dispatcher can map it onto a wire StatusCode.
package locneterrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies an error for wire-level reporting.
type Code int

const (
	// BadRequest marks a malformed or semantically invalid inbound message.
	BadRequest Code = iota
	// BadResponse marks a structurally invalid or non-OK peer response.
	BadResponse
	// Connection marks a TCP-level failure to connect or send.
	Connection
	// ProtocolViolation marks a framing read failure mid-frame.
	ProtocolViolation
	// InvalidState marks an operation on a closed or uninitialized object.
	InvalidState
	// Internal marks an invariant violation or unexpected failure.
	Internal
	// Unsupported marks a feature negotiated off.
	Unsupported
	// ConflictingID marks a store operation that would violate NodeId uniqueness.
	ConflictingID
	// NotFound marks an operation referencing an unknown NodeId.
	NotFound
	// InvalidCoordinate marks an out-of-range GPS coordinate.
	InvalidCoordinate
)

func (c Code) String() string {
	switch c {
	case BadRequest:
		return "BAD_REQUEST"
	case BadResponse:
		return "BAD_RESPONSE"
	case Connection:
		return "CONNECTION"
	case ProtocolViolation:
		return "PROTOCOL_VIOLATION"
	case InvalidState:
		return "INVALID_STATE"
	case Internal:
		return "INTERNAL"
	case Unsupported:
		return "UNSUPPORTED"
	case ConflictingID:
		return "CONFLICTING_ID"
	case NotFound:
		return "NOT_FOUND"
	case InvalidCoordinate:
		return "INVALID_COORDINATE"
	default:
		return "UNKNOWN"
	}
}

// Error is a domain error tagged with a Code.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

// New creates an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches context to err while preserving its Code if err is (or
// wraps) a *Error; otherwise the result is an Internal error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}

// CodeOf extracts the Code of err, defaulting to Internal if err does not
// wrap a *Error.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return Internal
}
