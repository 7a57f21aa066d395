package errors

import (
	"errors"
	"fmt"
)

// RejectionReason explains why the safety gate refused a statement.
type RejectionReason string

const (
	// ReasonBlockedDestructive marks a mutating statement sent without the
	// allow-destructive flag.
	ReasonBlockedDestructive RejectionReason = CodeBlockedDestructive
	// ReasonAmbiguousStatement marks input that could not be classified.
	ReasonAmbiguousStatement RejectionReason = CodeAmbiguousStatement
)

// RejectionError is returned by the safety gate. It never reaches a backend.
type RejectionError struct {
	Reason   RejectionReason `json:"reason"`
	Category string          `json:"category,omitempty"`
	Message  string          `json:"message"`
}

// NewRejection builds a RejectionError with a default message for the reason.
func NewRejection(reason RejectionReason, category string) *RejectionError {
	var msg string
	switch reason {
	case ReasonBlockedDestructive:
		msg = fmt.Sprintf("%s statements are blocked; set allow_destructive to run them", category)
	default:
		msg = "statement could not be classified safely; it was rejected"
	}
	return &RejectionError{Reason: reason, Category: category, Message: msg}
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Is matches rejections with the same reason and gateway sentinels with the same code.
func (e *RejectionError) Is(target error) bool {
	switch t := target.(type) {
	case *RejectionError:
		return e.Reason == t.Reason
	case *GatewayError:
		return string(e.Reason) == t.Code
	}
	return false
}

// IsRejection reports whether err is a safety gate refusal.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// AsRejection returns the RejectionError in err's chain, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	ok := errors.As(err, &rej)
	return rej, ok
}
