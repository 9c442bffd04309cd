package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetail_DoesNotMutateSentinel(t *testing.T) {
	err := ErrValidation.WithDetail("message", "text is required")

	assert.Equal(t, "text is required", err.Details["message"])
	assert.Empty(t, ErrValidation.Details)
	assert.Equal(t, "VALIDATION_ERROR: text is required", err.Error())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		validation bool
		badGateway bool
	}{
		{name: "validation", err: ErrValidation.WithDetail("message", "bad"), status: http.StatusBadRequest, validation: true},
		{name: "wrapped bad gateway", err: fmt.Errorf("fetch: %w", ErrBadGateway.WithCause(errors.New("HTTP 503"))), status: http.StatusBadGateway, badGateway: true},
		{name: "service unavailable", err: ErrServiceUnavailable, status: http.StatusServiceUnavailable},
		{name: "plain error", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, ToHTTPStatus(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.badGateway, IsBadGateway(tt.err))
		})
	}
}

func TestRetryability(t *testing.T) {
	assert.True(t, ErrValidation.IsFatal())
	assert.False(t, ErrValidation.IsRetryable())
	assert.True(t, ErrBadGateway.IsRetryable())
	assert.True(t, ErrBadGateway.AsFatal().IsFatal())
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrBadGateway.WithDetail("message", "test message was not delivered"))
	assert.Equal(t, "BAD_GATEWAY", resp["error_code"])
	assert.Equal(t, "upstream request failed", resp["error"])
	require.Contains(t, resp, "details")

	resp = ToErrorResponse(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
	assert.NotContains(t, resp, "details")
}

func TestRecoverPanic(t *testing.T) {
	assert.NoError(t, RecoverPanic(nil))

	err := RecoverPanic("nil map")
	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
	assert.True(t, appErr.IsFatal())
	assert.EqualError(t, appErr.Cause, "panic: nil map")
}
