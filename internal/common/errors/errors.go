// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeRecipientNotFound ErrorCode = "RECIPIENT_NOT_FOUND"
	ErrCodeOrderNotFound     ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeProductNotFound   ErrorCode = "PRODUCT_NOT_FOUND"
	ErrCodeAlertNotFound     ErrorCode = "ALERT_NOT_FOUND"
	ErrCodeUnknownEventCode  ErrorCode = "UNKNOWN_EVENT_CODE"

	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateRenderFailed ErrorCode = "TEMPLATE_RENDER_FAILED"

	ErrCodeDatabaseQueryFailed  ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeEmailSendFailed   ErrorCode = "EMAIL_SEND_FAILED"
	ErrCodeSMSNotImplemented ErrorCode = "SMS_NOT_IMPLEMENTED"
	ErrCodeDispatchFailed    ErrorCode = "DISPATCH_FAILED"
)

// StandardError represents a structured application error.
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

func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Job input failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotFoundError(code ErrorCode, entity string, id interface{}) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   fmt.Sprintf("%s not found", entity),
		Details:   fmt.Sprintf("id: %v", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnknownEventCodeError(code string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownEventCode,
		Message:   "Event code is not handled by this worker",
		Details:   fmt.Sprintf("eventCode: %s", code),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTemplateNotFoundError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Message template does not exist",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTemplateRenderFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateRenderFailed,
		Message:   "Message template could not be rendered",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDatabaseQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewEmailSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmailSendFailed,
		Message:   "Email delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewSMSNotImplementedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSMSNotImplemented,
		Message:   "SMS channel is not implemented",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDispatchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchFailed,
		Message:   "Message dispatch failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. BPMN Mapping & Retry Policy
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:         "INVALID_INPUT",
	ErrCodeRecipientNotFound:    "RECIPIENT_NOT_FOUND",
	ErrCodeOrderNotFound:        "ORDER_NOT_FOUND",
	ErrCodeProductNotFound:      "PRODUCT_NOT_FOUND",
	ErrCodeAlertNotFound:        "ALERT_NOT_FOUND",
	ErrCodeUnknownEventCode:     "UNKNOWN_EVENT_CODE",
	ErrCodeTemplateNotFound:     "TEMPLATE_NOT_FOUND",
	ErrCodeTemplateRenderFailed: "TEMPLATE_RENDER_FAILED",
	ErrCodeDatabaseQueryFailed:  "DATABASE_QUERY_FAILED",
	ErrCodeDatabaseInsertFailed: "DATABASE_INSERT_FAILED",
	ErrCodeEmailSendFailed:      "NOTIFICATION_SEND_FAILED",
	ErrCodeSMSNotImplemented:    "SMS_NOT_IMPLEMENTED",
	ErrCodeDispatchFailed:       "NOTIFICATION_SEND_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseQueryFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeEmailSendFailed:
		return 3

	case ErrCodeDispatchFailed:
		return 1

	default:
		return 0 // Business errors: no retry
	}
}

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

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "EMAIL") || strings.Contains(codeStr, "SMS") || strings.Contains(codeStr, "DISPATCH"):
		return "NOTIFICATION"
	case strings.HasSuffix(codeStr, "NOT_FOUND"):
		return "LOOKUP"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "UNKNOWN"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
