package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsStandard(t *testing.T) {
	orig := NewMissionNotFoundError("m-1")
	wrapped := fmt.Errorf("publish: %w", orig)
	assert.Same(t, orig, AsStandard(wrapped))

	plain := AsStandard(fmt.Errorf("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)
	assert.False(t, plain.Retryable)
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeValidationFailed:        http.StatusBadRequest,
		ErrCodeInvalidJobVariables:     http.StatusBadRequest,
		ErrCodeUnauthenticated:         http.StatusUnauthorized,
		ErrCodeForbidden:               http.StatusForbidden,
		ErrCodeNotAssignedWorker:       http.StatusForbidden,
		ErrCodeMissionNotFound:         http.StatusNotFound,
		ErrCodeNotificationNotFound:    http.StatusNotFound,
		ErrCodeInvalidStateTransition:  http.StatusConflict,
		ErrCodeIdentityProviderFailure: http.StatusServiceUnavailable,
		ErrCodeDatabaseError:           http.StatusInternalServerError,
		ErrCodeInternal:                http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatus(code), code)
	}
}

func TestConvertToBPMNError(t *testing.T) {
	t.Run("retryable database error keeps its budget", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewDatabaseError("claim", fmt.Errorf("connection reset")))
		assert.Equal(t, "DATABASE_ERROR", bpmn.Code)
		assert.Equal(t, 3, bpmn.Retries)
		assert.True(t, bpmn.Retryable)

		vars := bpmn.ToErrorVariables()
		assert.Equal(t, "DATABASE_ERROR", vars["errorCode"])
		assert.Equal(t, "DATABASE_ERROR", vars["originalErrorCode"])
		assert.Contains(t, vars["errorDetails"], "op: claim")
	})

	t.Run("non retryable error is thrown immediately", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewInvalidStateTransitionError("mission is completed"))
		assert.Zero(t, bpmn.Retries)
		assert.False(t, bpmn.Retryable)
	})

	t.Run("retryable flag overrides the code budget", func(t *testing.T) {
		stdErr := NewDatabaseError("claim", fmt.Errorf("constraint violated"))
		stdErr.Retryable = false
		assert.Zero(t, ConvertToBPMNError(stdErr).Retries)
	})
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "DISPATCH", GetErrorCategory(ErrCodeMissionNotFound))
	assert.Equal(t, "DISPATCH", GetErrorCategory(ErrCodeNotAssignedWorker))
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeUnauthenticated))
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeIdentityProviderFailure))
	assert.Equal(t, "NOTIFICATION", GetErrorCategory(ErrCodeNotificationNotFound))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidJobVariables))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestStandardError_Error(t *testing.T) {
	err := NewForbiddenError("assign mission")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FORBIDDEN")
	assert.True(t, IsRetryableErrorCode(ErrCodeSearchQueryFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeForbidden))
}
