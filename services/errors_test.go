package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorError(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewDomainError(ErrorTypeNotFound, "policy not found", nil)
		assert.Equal(t, "not_found: policy not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewDomainError(ErrorTypeLedger, "ledger lookup", cause)
		assert.Equal(t, "ledger: ledger lookup (connection refused)", err.Error())
		assert.Equal(t, cause, errors.Unwrap(err))
	})
}

func TestDomainErrorIs(t *testing.T) {
	t.Run("matches on type across instances", func(t *testing.T) {
		err := NewDomainError(ErrorTypeNotFound, "rule gone", nil)
		assert.ErrorIs(t, err, ErrPolicyNotFound)
		assert.NotErrorIs(t, err, ErrLedgerUnavailable)
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("get policy: %w", ErrPolicyNotFound)
		assert.ErrorIs(t, wrapped, ErrPolicyNotFound)
		assert.True(t, IsNotFoundError(wrapped))
	})
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		notFound   bool
		validation bool
		ledger     bool
	}{
		{
			name:     "not found sentinel",
			err:      ErrPolicyNotFound,
			wantType: ErrorTypeNotFound,
			notFound: true,
		},
		{
			name:       "validation sentinel",
			err:        ErrEmptyReimbursement,
			wantType:   ErrorTypeValidation,
			validation: true,
		},
		{
			name:     "wrapped ledger error",
			err:      WrapLedger("ledger lookup", errors.New("timeout")),
			wantType: ErrorTypeLedger,
			ledger:   true,
		},
		{
			name:     "wrapped internal error",
			err:      WrapError(ErrorTypeInternal, "boom", errors.New("oops")),
			wantType: ErrorTypeInternal,
		},
		{
			name: "plain error",
			err:  errors.New("plain"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, GetErrorType(tt.err))
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.validation, IsValidationError(tt.err))
			assert.Equal(t, tt.ledger, IsLedgerError(tt.err))
		})
	}
}

func TestWrapLedger(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapLedger("ledger lookup for per_day|meals|2026-03-15", cause)

	require.True(t, IsLedgerError(err))
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "bad input", nil).
		WithDetail("field", "amount").
		WithDetail("index", 2)

	assert.Equal(t, "amount", err.Details["field"])
	assert.Equal(t, 2, err.Details["index"])
}
