package errors

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "load"))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		err := Wrapf(io.ErrUnexpectedEOF, "decode %s", "concept")
		require.Error(t, err)
		assert.True(t, IsType(err, ErrorTypeInternal))
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
		assert.Contains(t, err.Error(), "decode concept")
	})

	t.Run("app error keeps type and is not mutated", func(t *testing.T) {
		inner := NewUnavailableError("mastery")
		err := Wrap(inner, "annotate traversal")

		assert.True(t, IsType(err, ErrorTypeUnavailable))
		assert.True(t, IsRetryable(err))
		assert.True(t, errors.Is(err, inner))
		assert.Equal(t, "service 'mastery' is unavailable", inner.Message)
	})
}

func TestIsValidation(t *testing.T) {
	fieldErrs := NewValidationErrors()
	fieldErrs.Add("difficulty", "difficulty must be at most 5")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"app validation", NewValidationError("bad input"), true},
		{"domain validation", ErrInvalidWeight, true},
		{"self reference", ErrSelfReference, false},
		{"field errors", fieldErrs, true},
		{"empty field errors", NewValidationErrors(), false},
		{"wrapped", Wrap(fieldErrs, "concept x"), true},
		{"business rule", ErrWouldCreateCycle, false},
		{"timeout", NewTimeoutError("AcquireLock").WithCause(context.DeadlineExceeded), false},
		{"plain", io.EOF, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidation(tt.err))
		})
	}
}

func TestValidationErrors_ToMap(t *testing.T) {
	v := NewValidationErrors()
	assert.False(t, v.HasErrors())

	v.Add("name", "name is required")
	v.AddError(NewDomainError(DomainValidationError, "X", "general failure"))
	assert.True(t, v.HasErrors())
	assert.Equal(t, map[string][]string{
		"name":    {"name is required"},
		"general": {"general failure"},
	}, v.ToMap())
}
