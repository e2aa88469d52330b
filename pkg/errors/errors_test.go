package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewError tests the basic creation of errors.
func TestNewError(t *testing.T) {
	tests := []struct {
		name    string
		code    ErrorCode
		message string
	}{
		{
			name:    "InvalidInput",
			code:    InvalidInput,
			message: "question must not be empty",
		},
		{
			name:    "NotExpandable",
			code:    NotExpandable,
			message: "node already has children",
		},
		{
			name:    "BudgetExhausted",
			code:    BudgetExhausted,
			message: "global budget exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)

			customErr, ok := err.(*Error)

			assert.True(t, ok, "should be a custom *Error")
			assert.Equal(t, tt.code, customErr.Code())
			assert.Equal(t, tt.message, customErr.Error())

			// Test nil original error for new errors
			assert.Nil(t, customErr.Unwrap())
		})
	}
}

// TestWrapError tests error wrapping functionality.
func TestWrapError(t *testing.T) {
	originalErr := stderrors.New("original error")

	tests := []struct {
		name       string
		err        error
		code       ErrorCode
		wrapMsg    string
		expectNil  bool
		expectCode ErrorCode
	}{
		{
			name:       "Wrap normal error",
			err:        originalErr,
			code:       ParseFailure,
			wrapMsg:    "malformed extraction response",
			expectNil:  false,
			expectCode: ParseFailure,
		},
		{
			name:      "Wrap nil error",
			err:       nil,
			code:      ParseFailure,
			wrapMsg:   "malformed extraction response",
			expectNil: true,
		},
		{
			name:       "Wrap custom error",
			err:        New(ServiceUnavailable, "service down"),
			code:       GenerationFailed,
			wrapMsg:    "expansion call failed",
			expectNil:  false,
			expectCode: GenerationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, tt.code, tt.wrapMsg)

			if tt.expectNil {
				assert.Nil(t, wrapped)
				return
			}

			assert.NotNil(t, wrapped)

			ourErr := wrapped.(*Error)
			assert.Equal(t, tt.expectCode, ourErr.Code())
			assert.Contains(t, ourErr.Error(), tt.wrapMsg)

			// Verify original error is preserved
			unwrapped := ourErr.Unwrap()
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), unwrapped.Error())
			}
		})
	}
}

// TestErrorInterfaces tests compliance with Go error interfaces.
func TestErrorInterfaces(t *testing.T) {
	t.Run("errors.Is support", func(t *testing.T) {
		err1 := New(InvalidInput, "first")
		err2 := New(InvalidInput, "second")
		err3 := New(NotExpandable, "third")

		assert.True(t, stderrors.Is(err1, err2),
			"Errors with same code should match with Is")
		assert.False(t, stderrors.Is(err1, err3),
			"Errors with different codes should not match with Is")
	})

	t.Run("errors.As support", func(t *testing.T) {
		originalErr := New(Timeout, "original")
		wrappedErr := Wrap(originalErr, GenerationFailed, "wrapped")

		var customErr *Error
		assert.True(t, stderrors.As(wrappedErr, &customErr),
			"Should be able to extract custom error type")
		assert.Equal(t, GenerationFailed, customErr.Code())
	})

	t.Run("error unwrapping", func(t *testing.T) {
		baseErr := stderrors.New("base error")
		wrapped := Wrap(baseErr, StoreFailure, "wrapped error")

		unwrapped := stderrors.Unwrap(wrapped)
		assert.Equal(t, baseErr.Error(), unwrapped.Error())
	})
}

func TestErrorFields(t *testing.T) {
	t.Run("Empty fields", func(t *testing.T) {
		err := New(InvalidInput, "error")
		customErr := err.(*Error)
		assert.Empty(t, customErr.Fields())
	})

	t.Run("Add fields", func(t *testing.T) {
		fields := Fields{
			"node_id":    7,
			"capability": "extraction",
			"retryable":  true,
		}
		err := WithFields(New(Timeout, "error"), fields)
		customErr := err.(*Error)
		assert.Equal(t, fields, customErr.Fields())
	})

	t.Run("Merge fields", func(t *testing.T) {
		err := WithFields(New(InvalidInput, "error"), Fields{"a": 1})
		err = WithFields(err, Fields{"b": 2})
		customErr := err.(*Error)
		assert.Len(t, customErr.Fields(), 2)
		assert.Equal(t, 1, customErr.Fields()["a"])
		assert.Equal(t, 2, customErr.Fields()["b"])
	})

	t.Run("Fields method returns copy not reference", func(t *testing.T) {
		err := WithFields(New(InvalidInput, "error"), Fields{"key": "original"})
		customErr := err.(*Error)

		returned := customErr.Fields()
		returned["key"] = "modified"

		assert.Equal(t, "original", customErr.Fields()["key"])
	})
}

func TestWithFieldsOnForeignError(t *testing.T) {
	baseErr := stderrors.New("base error")
	fields := Fields{"context": "test"}

	result := WithFields(baseErr, fields)
	assert.NotNil(t, result)

	customErr, ok := result.(*Error)
	require.True(t, ok)
	assert.Equal(t, Unknown, customErr.Code())
	assert.Equal(t, baseErr, customErr.Unwrap())
	assert.Equal(t, "test", customErr.Fields()["context"])
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"direct error", New(BudgetExhausted, "done"), BudgetExhausted},
		{"wrapped error", Wrap(New(Timeout, "slow"), GenerationFailed, "call failed"), GenerationFailed},
		{"foreign error", stderrors.New("plain"), Unknown},
		{"nil error", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", New(Timeout, "slow"), true},
		{"unavailable", New(ServiceUnavailable, "down"), true},
		{"generation failed", New(GenerationFailed, "bad"), true},
		{"parse failure", New(ParseFailure, "garbage"), true},
		{"invalid input", New(InvalidInput, "empty"), false},
		{"not expandable", New(NotExpandable, "has children"), false},
		{"budget exhausted", New(BudgetExhausted, "spent"), false},
		{"foreign error", stderrors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
}

func TestCheckContext(t *testing.T) {
	t.Run("live context", func(t *testing.T) {
		assert.NoError(t, CheckContext(context.Background(), "expand"))
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := CheckContext(ctx, "expand")
		require.Error(t, err)
		assert.Equal(t, Canceled, CodeOf(err))
	})

	t.Run("deadline exceeded maps to Timeout", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := CheckContext(ctx, "expand")
		require.Error(t, err)
		assert.Equal(t, Timeout, CodeOf(err))
	})
}
