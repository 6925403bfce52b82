package enum

import (
	"errors"
	"fmt"
)

// KindedError pairs an ErrorKind with a human-readable message and an
// optional wrapped cause. Components return these instead of bare
// errors so callers at a boundary (HTTP handler, log line) can map on
// Kind without string matching or type assertions into each package.
type KindedError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *KindedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *KindedError) Unwrap() error {
	return e.Cause
}

// NewError builds a KindedError with no wrapped cause.
func NewError(kind ErrorKind, message string) *KindedError {
	return &KindedError{Kind: kind, Message: message}
}

// Wrap builds a KindedError that wraps an underlying cause.
func Wrap(kind ErrorKind, message string, cause error) *KindedError {
	return &KindedError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// KindedError, otherwise returns ErrUnknown. A nil err yields the
// empty kind "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ke *KindedError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ErrUnknown
}
