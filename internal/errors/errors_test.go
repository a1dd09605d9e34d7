// Package errors tests for error codes and error handling.
package errors

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorCodeValues verifies all error codes have non-empty values.
func TestErrorCodeValues(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		{"internal", ErrInternal},
		{"invalid", ErrInvalid},
		{"not found", ErrNotFound},
		{"validation", ErrValidation},
		{"database", ErrDatabase},
		{"migration", ErrMigration},
		{"storage unavailable", ErrStorageUnavailable},
		{"queue corrupt", ErrQueueCorrupt},
		{"sync failed", ErrSyncFailed},
		{"sync rejected", ErrSyncRejected},
		{"sync timeout", ErrSyncTimeout},
		{"drain in progress", ErrDrainInProgress},
		{"crypto failed", ErrCryptoFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code == "" {
				t.Errorf("ErrorCode %q should not be empty", tt.name)
			}
		})
	}
}

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "error without underlying error",
			appError: &AppError{Code: ErrInternal, Message: "something failed"},
			want:     "[INTERNAL_ERROR] something failed",
		},
		{
			name:     "error with underlying error",
			appError: &AppError{Code: ErrDatabase, Message: "query failed", Err: errors.New("connection lost")},
			want:     "[DATABASE_ERROR] query failed: connection lost",
		},
		{
			name:     "rejected by remote",
			appError: &AppError{Code: ErrSyncRejected, Message: "validation"},
			want:     "[SYNC_REJECTED] validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appError.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestWrap verifies error wrapping.
func TestWrap(t *testing.T) {
	underlyingErr := errors.New("underlying")

	err := Wrap(ErrDatabase, "query failed", underlyingErr)
	if err.Code != ErrDatabase {
		t.Errorf("Wrap() code = %q, want %q", err.Code, ErrDatabase)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("Wrap() should keep the underlying error in the chain")
	}
}

// TestIs verifies error code checking through wrap chains.
func TestIs(t *testing.T) {
	nested := Wrap(ErrSyncFailed, "drain", New(ErrSyncTimeout, "deadline"))

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching AppError", New(ErrNotFound, "not found"), ErrNotFound, true},
		{"non-matching AppError", New(ErrNotFound, "not found"), ErrInternal, false},
		{"non-AppError", errors.New("standard error"), ErrInternal, false},
		{"nil error", nil, ErrInternal, false},
		{"fmt wrapped", fmt.Errorf("ctx: %w", New(ErrQueueCorrupt, "bad row")), ErrQueueCorrupt, true},
		{"outer code", nested, ErrSyncFailed, true},
		{"inner code", nested, ErrSyncTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", New(ErrNotFound, "gone"))); got != ErrNotFound {
		t.Errorf("CodeOf() = %q, want %q", got, ErrNotFound)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf() = %q, want %q", got, ErrInternal)
	}
}
