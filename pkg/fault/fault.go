// Package fault defines the typed error kinds shared across the gate and the
// drift pipeline. Callers classify failures by Kind, never by message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind partitions failures into the categories the evaluator and the drift
// driver act on.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindNotFound       Kind = "NotFound"
	KindUnauthorized   Kind = "Unauthorized"
	KindRateLimited    Kind = "RateLimited"
	KindTimeout        Kind = "Timeout"
	KindBudgetExceeded Kind = "BudgetExceeded"
	KindTransport      Kind = "Transport"
	KindConflict       Kind = "Conflict"
	KindUnsafe         Kind = "Unsafe"
	KindUnknown        Kind = "Unknown"
)

// Error carries a Kind plus a human-readable message. It wraps an optional
// cause so errors.Is/As keep working through the classification layer.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause returns nil.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, unwrapping as needed. Unclassified
// errors report KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the error kind is transient. The drift driver
// uses this to decide between re-enqueue with backoff and terminal failure.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindRateLimited, KindTransport:
		return true
	}
	return false
}
