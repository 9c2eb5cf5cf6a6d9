// Package errors provides the standard error envelope shared by the HTTP API and the
// workflow-engine job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Caller errors: reported, never retried.
	ErrCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnauthenticated         ErrorCode = "UNAUTHENTICATED"
	ErrCodeForbidden               ErrorCode = "FORBIDDEN"
	ErrCodeMissionNotFound         ErrorCode = "MISSION_NOT_FOUND"
	ErrCodeInvalidStateTransition  ErrorCode = "INVALID_STATE_TRANSITION"
	ErrCodeNotificationNotFound    ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodeInvalidJobVariables     ErrorCode = "INVALID_JOB_VARIABLES"
	ErrCodeNotAssignedWorker       ErrorCode = "NOT_ASSIGNED_WORKER"
	ErrCodeIdentityProviderFailure ErrorCode = "IDENTITY_PROVIDER_FAILURE"

	// Technical errors.
	ErrCodeDatabaseError          ErrorCode = "DATABASE_ERROR"
	ErrCodePublishFailed          ErrorCode = "PUBLISH_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeSearchQueryFailed      ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the error shape returned to API callers and workflow variables.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// BPMNError is the representation thrown into a Zeebe process instance.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 2. Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Request validation failed", details, false)
}

func NewUnauthenticatedError(details string) *StandardError {
	return newError(ErrCodeUnauthenticated, "Caller identity could not be established", details, false)
}

func NewForbiddenError(operation string) *StandardError {
	return newError(ErrCodeForbidden, "Caller role is not allowed to perform this operation",
		fmt.Sprintf("operation: %s", operation), false)
}

func NewMissionNotFoundError(missionID string) *StandardError {
	return newError(ErrCodeMissionNotFound, "Mission not found", fmt.Sprintf("missionId: %s", missionID), false)
}

func NewInvalidStateTransitionError(details string) *StandardError {
	return newError(ErrCodeInvalidStateTransition, "Mission status does not allow this operation", details, false)
}

func NewNotificationNotFoundError(notificationID string) *StandardError {
	return newError(ErrCodeNotificationNotFound, "Notification not found",
		fmt.Sprintf("notificationId: %s", notificationID), false)
}

func NewInvalidJobVariablesError(details string) *StandardError {
	return newError(ErrCodeInvalidJobVariables, "Job variables failed schema validation", details, false)
}

func NewNotAssignedWorkerError(missionID string) *StandardError {
	return newError(ErrCodeNotAssignedWorker, "Caller is not the assigned worker",
		fmt.Sprintf("missionId: %s", missionID), false)
}

func NewIdentityProviderError(err error) *StandardError {
	return newError(ErrCodeIdentityProviderFailure, "Identity provider unavailable", err.Error(), true)
}

func NewDatabaseError(op string, err error) *StandardError {
	return newError(ErrCodeDatabaseError, "Database operation failed",
		fmt.Sprintf("op: %s, error: %s", op, err.Error()), true)
}

func NewPublishFailedError(missionID string, err error) *StandardError {
	return newError(ErrCodePublishFailed, "Mission publication failed",
		fmt.Sprintf("missionId: %s, error: %s", missionID, err.Error()), true)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
}

func NewSearchQueryFailedError(err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Search query failed", err.Error(), true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// ==========================
// 3. Conversion
// ==========================

// AsStandard unwraps err into a StandardError, falling back to INTERNAL_ERROR.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// GetRetryCount returns the Zeebe retry budget for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseError,
		ErrCodePublishFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeSearchQueryFailed:
		return 3
	case ErrCodeIdentityProviderFailure:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}
	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// HTTPStatus maps a code to the status the API responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidJobVariables:
		return http.StatusBadRequest
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeNotAssignedWorker:
		return http.StatusForbidden
	case ErrCodeMissionNotFound, ErrCodeNotificationNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidStateTransition:
		return http.StatusConflict
	case ErrCodeIdentityProviderFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for log aggregation.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "MISSION") || strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "ASSIGNED"):
		return "DISPATCH"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "AUTH") || strings.Contains(codeStr, "FORBIDDEN") || strings.Contains(codeStr, "IDENTITY"):
		return "AUTH"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "VARIABLES"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
