// Package errors provides standardized error types for the dwgate gateway.
package errors

import (
	"errors"
	"fmt"
)

// Error codes surfaced to tool callers.
const (
	CodeUnknownPlatform    = "UNKNOWN_PLATFORM"
	CodeInvalidStatement   = "INVALID_STATEMENT"
	CodeBlockedDestructive = "BLOCKED_DESTRUCTIVE"
	CodeAmbiguousStatement = "AMBIGUOUS_STATEMENT"
	CodeConnectionFailed   = "CONNECTION_FAILED"
	CodeExecutionFailed    = "EXECUTION_FAILED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeDeadlineExceeded   = "DEADLINE_EXCEEDED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Detail keys used by the constructors below.
const (
	DetailPlatform  = "platform"
	DetailInstance  = "instance"
	DetailStatement = "statement"
)

// GatewayError is a coded error with an optional cause and structured details.
type GatewayError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is matches any GatewayError or RejectionError carrying the same code.
func (e *GatewayError) Is(target error) bool {
	switch t := target.(type) {
	case *GatewayError:
		return e.Code == t.Code
	case *RejectionError:
		return e.Code == string(t.Reason)
	}
	return false
}

// WithDetails replaces the error details.
func (e *GatewayError) WithDetails(details map[string]interface{}) *GatewayError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *GatewayError) WithDetail(key string, value interface{}) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownPlatform    = &GatewayError{Code: CodeUnknownPlatform, Message: "unknown platform"}
	ErrInvalidStatement   = &GatewayError{Code: CodeInvalidStatement, Message: "invalid statement"}
	ErrBlockedDestructive = &GatewayError{Code: CodeBlockedDestructive, Message: "destructive statement blocked"}
	ErrAmbiguousStatement = &GatewayError{Code: CodeAmbiguousStatement, Message: "ambiguous statement"}
	ErrConnectionFailed   = &GatewayError{Code: CodeConnectionFailed, Message: "backend connection failed"}
	ErrExecutionFailed    = &GatewayError{Code: CodeExecutionFailed, Message: "statement execution failed"}
	ErrQueryTimeout       = &GatewayError{Code: CodeDeadlineExceeded, Message: "query execution timeout"}
)

// New creates a new GatewayError with the given code and message.
func New(code, message string) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new GatewayError with a formatted message.
func Newf(code, format string, args ...interface{}) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a GatewayError.
func Wrap(err error, code, message string) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// UnknownPlatform reports a kind name or instance id that does not resolve.
func UnknownPlatform(name string) *GatewayError {
	return Newf(CodeUnknownPlatform, "unknown platform %q", name).
		WithDetail(DetailPlatform, name)
}

// InvalidStatement reports input the rewriter cannot operate on.
func InvalidStatement(reason string) *GatewayError {
	return New(CodeInvalidStatement, reason)
}

// ConnectionFailed wraps a driver error raised while opening an instance.
func ConnectionFailed(instance string, cause error) *GatewayError {
	return Wrapf(cause, CodeConnectionFailed, "failed to connect to %s", instance).
		WithDetail(DetailInstance, instance)
}

// ExecutionFailed wraps a backend error together with the statement actually sent.
func ExecutionFailed(instance, statement string, cause error) *GatewayError {
	return Wrapf(cause, CodeExecutionFailed, "query failed on %s", instance).
		WithDetail(DetailInstance, instance).
		WithDetail(DetailStatement, statement)
}

// IsUnknownPlatform checks if an error is an unknown platform error.
func IsUnknownPlatform(err error) bool {
	return hasCode(err, CodeUnknownPlatform)
}

// IsInvalidStatement checks if an error is an invalid statement error.
func IsInvalidStatement(err error) bool {
	return hasCode(err, CodeInvalidStatement)
}

// IsConnectionFailed checks if an error is a connection error.
func IsConnectionFailed(err error) bool {
	return hasCode(err, CodeConnectionFailed)
}

// IsExecutionFailed checks if an error is an execution error.
func IsExecutionFailed(err error) bool {
	return hasCode(err, CodeExecutionFailed)
}

// IsInvalidRequest checks if an error is an invalid request error.
func IsInvalidRequest(err error) bool {
	return hasCode(err, CodeInvalidRequest)
}

// IsInternal checks if an error is an internal error.
func IsInternal(err error) bool {
	return hasCode(err, CodeInternal)
}

func hasCode(err error, code string) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return string(rej.Reason)
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Message
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return err.Error()
}

// GetDetail returns a detail value attached to a GatewayError in the chain.
func GetDetail(err error, key string) (interface{}, bool) {
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Details == nil {
		return nil, false
	}
	v, ok := gwErr.Details[key]
	return v, ok
}
