package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GatewayError
		expected string
	}{
		{
			name: "error without cause",
			err: &GatewayError{
				Code:    CodeInvalidRequest,
				Message: "invalid input",
			},
			expected: "INVALID_REQUEST: invalid input",
		},
		{
			name: "error with cause",
			err: &GatewayError{
				Code:    CodeConnectionFailed,
				Message: "failed to connect to mysql",
				Cause:   fmt.Errorf("dial tcp: refused"),
			},
			expected: "CONNECTION_FAILED: failed to connect to mysql (caused by: dial tcp: refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestGatewayError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(cause, CodeExecutionFailed, "boom")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, ErrExecutionFailed))
	assert.True(t, errors.Is(err, cause))
}

func TestGatewayError_Is(t *testing.T) {
	err1 := &GatewayError{Code: CodeUnknownPlatform, Message: "a"}
	err2 := &GatewayError{Code: CodeUnknownPlatform, Message: "b"}
	err3 := &GatewayError{Code: CodeInvalidRequest, Message: "c"}

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
	assert.False(t, err1.Is(fmt.Errorf("standard error")))
}

func TestWithDetail(t *testing.T) {
	err := New(CodeInvalidRequest, "bad").WithDetail("field", "query").WithDetail("len", 0)

	assert.Equal(t, "query", err.Details["field"])
	assert.Equal(t, 0, err.Details["len"])
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "message"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "message %d", 1))
}

func TestConstructors(t *testing.T) {
	t.Run("unknown platform", func(t *testing.T) {
		err := UnknownPlatform("oracle")
		assert.True(t, IsUnknownPlatform(err))
		assert.Equal(t, `unknown platform "oracle"`, GetMessage(err))
		v, ok := GetDetail(err, DetailPlatform)
		require.True(t, ok)
		assert.Equal(t, "oracle", v)
	})

	t.Run("execution failed keeps statement", func(t *testing.T) {
		cause := fmt.Errorf("Table 'x' doesn't exist")
		err := ExecutionFailed("mysql", "SELECT * FROM x LIMIT 100", cause)
		assert.True(t, IsExecutionFailed(err))
		assert.ErrorIs(t, err, cause)
		v, ok := GetDetail(fmt.Errorf("outer: %w", err), DetailStatement)
		require.True(t, ok)
		assert.Equal(t, "SELECT * FROM x LIMIT 100", v)
	})

	t.Run("connection failed", func(t *testing.T) {
		err := ConnectionFailed("holo_hk_chatbi", fmt.Errorf("timeout"))
		assert.True(t, IsConnectionFailed(err))
		assert.Contains(t, err.Error(), "timeout")
	})
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"gateway error", ErrInvalidStatement, CodeInvalidStatement},
		{"wrapped gateway error", fmt.Errorf("ctx: %w", ErrConnectionFailed), CodeConnectionFailed},
		{"rejection", NewRejection(ReasonAmbiguousStatement, "UNKNOWN"), CodeAmbiguousStatement},
		{"standard error", fmt.Errorf("plain"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetCode(tt.err))
		})
	}
}

func TestRejectionError(t *testing.T) {
	rej := NewRejection(ReasonBlockedDestructive, "DESTRUCTIVE")

	assert.Equal(t, "BLOCKED_DESTRUCTIVE: DESTRUCTIVE statements are blocked; set allow_destructive to run them", rej.Error())
	assert.True(t, IsRejection(fmt.Errorf("gate: %w", rej)))
	assert.True(t, errors.Is(rej, ErrBlockedDestructive))
	assert.False(t, errors.Is(rej, ErrAmbiguousStatement))

	got, ok := AsRejection(rej)
	require.True(t, ok)
	assert.Equal(t, "DESTRUCTIVE", got.Category)

	assert.False(t, IsRejection(ErrExecutionFailed))
}
