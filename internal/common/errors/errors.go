// Package errors provides standardized error handling for the lifecycle engine,
// the HTTP API and BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodePersistenceFailed   ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	ErrCodeCloseNotConfirmed   ErrorCode = "CLOSE_NOT_CONFIRMED"
	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"

	ErrCodeInviteNotFound         ErrorCode = "INVITE_NOT_FOUND"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeSearchIndexFailed      ErrorCode = "SEARCH_INDEX_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches any StandardError carrying the same code, so sentinels such as
// ErrNotFound work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound            = &StandardError{Code: ErrCodeNotFound}
	ErrValidation          = &StandardError{Code: ErrCodeValidationFailed}
	ErrPersistence         = &StandardError{Code: ErrCodePersistenceFailed}
	ErrConcurrencyConflict = &StandardError{Code: ErrCodeConcurrencyConflict}
	ErrCloseNotConfirmed   = &StandardError{Code: ErrCodeCloseNotConfirmed}
	ErrInvalidTransition   = &StandardError{Code: ErrCodeInvalidTransition}
	ErrInviteNotFound      = &StandardError{Code: ErrCodeInviteNotFound}
)

// As extracts a StandardError from err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := As(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
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

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
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
// 3. Error Constructors
// ==========================

// NewNotFoundError creates a non-retryable error for a missing record.
func NewNotFoundError(kind, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", kind),
		Details:   fmt.Sprintf("%sId: %s", strings.ToLower(kind), id),
		Retryable: false,
		Metadata:  map[string]interface{}{"kind": kind, "id": id},
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable error listing the offending fields.
func NewValidationError(fields map[string]string) *StandardError {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	meta := make(map[string]interface{}, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, fields[name]))
		meta[name] = fields[name]
	}

	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   strings.Join(parts, "; "),
		Retryable: false,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceError creates a retryable error for a failed store operation.
func NewPersistenceError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistenceFailed,
		Message:   "Record store operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %v", op, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewConcurrencyConflictError creates a non-retryable optimistic concurrency error.
func NewConcurrencyConflictError(kind, id, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConcurrencyConflict,
		Message:   fmt.Sprintf("%s was modified concurrently", kind),
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"kind": kind, "id": id},
		Timestamp: time.Now().UTC(),
	}
}

// NewCloseNotConfirmedError is returned when a close is attempted without confirmation.
func NewCloseNotConfirmedError(setID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCloseNotConfirmed,
		Message:   "Close action was not confirmed",
		Details:   fmt.Sprintf("setId: %s", setID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError creates a non-retryable status transition error.
func NewInvalidTransitionError(kind, from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   fmt.Sprintf("%s cannot move from %s to %s", kind, from, to),
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Metadata:  map[string]interface{}{"kind": kind, "from": from, "to": to},
		Timestamp: time.Now().UTC(),
	}
}

// NewForbiddenError is returned when the viewer's role does not permit an action.
func NewForbiddenError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeForbidden,
		Message:   "Action not permitted for this role",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInviteNotFoundError covers unknown, expired and already redeemed tokens.
func NewInviteNotFoundError(token string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInviteNotFound,
		Message:   "Invitation not found or expired",
		Details:   fmt.Sprintf("token: %s", token),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %v", notificationType, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewSearchIndexFailedError creates a retryable search indexing error.
func NewSearchIndexFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchIndexFailed,
		Message:   "Search index operation failed",
		Details:   fmt.Sprintf("index: %s, error: %v", index, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// ==========================
// 4. Error Conversion to BPMN and HTTP
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeNotFound:               "NOT_FOUND",
	ErrCodeValidationFailed:       "VALIDATION_FAILED",
	ErrCodePersistenceFailed:      "PERSISTENCE_FAILED",
	ErrCodeConcurrencyConflict:    "CONCURRENCY_CONFLICT",
	ErrCodeCloseNotConfirmed:      "CLOSE_NOT_CONFIRMED",
	ErrCodeInvalidTransition:      "INVALID_TRANSITION",
	ErrCodeForbidden:              "FORBIDDEN",
	ErrCodeInviteNotFound:         "INVITE_NOT_FOUND",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
	ErrCodeSearchIndexFailed:      "SEARCH_INDEX_FAILED",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePersistenceFailed,
		ErrCodeNotificationSendFailed:
		return 3

	case ErrCodeSearchIndexFailed:
		return 2

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
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

// HTTPStatus maps an error code to the status the API responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeInviteNotFound:
		return http.StatusNotFound
	case ErrCodeValidationFailed, ErrCodeCloseNotConfirmed:
		return http.StatusBadRequest
	case ErrCodeConcurrencyConflict:
		return http.StatusConflict
	case ErrCodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotificationSendFailed, ErrCodeSearchIndexFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeNotFound, ErrCodeValidationFailed, ErrCodeCloseNotConfirmed, ErrCodeInvalidTransition:
		return "VALIDATION"
	case ErrCodePersistenceFailed:
		return "DATABASE"
	case ErrCodeConcurrencyConflict:
		return "CONCURRENCY"
	case ErrCodeForbidden:
		return "AUTH"
	case ErrCodeInviteNotFound:
		return "RECRUITING"
	case ErrCodeNotificationSendFailed:
		return "NOTIFICATION"
	case ErrCodeSearchIndexFailed:
		return "SEARCH"
	default:
		return "OTHER"
	}
}
