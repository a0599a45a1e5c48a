package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned to API callers.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeAssignment         = "ASSIGNMENT_ERROR"
	CodeItemFrozen         = "ITEM_FROZEN"
	CodeMergeAborted       = "MERGE_ABORTED"
	CodeInvalidSchedule    = "INVALID_SCHEDULE"
	CodeAlreadyDispatching = "ALREADY_DISPATCHING"
	CodeConcurrentUpdate   = "CONCURRENT_UPDATE"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string, details map[string]any) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, details)
}

// NewInvalidTransition reports an illegal state change with the current and attempted state.
func NewInvalidTransition(itemID string, current, attempted any, reason string) error {
	msg := fmt.Sprintf("cannot move from %v to %v", current, attempted)
	if reason != "" {
		msg = msg + ": " + reason
	}
	return NewDomainError(CodeInvalidTransition, msg, http.StatusConflict, map[string]any{
		"item_id":         itemID,
		"current_status":  current,
		"attempted_state": attempted,
	})
}

func NewAssignmentError(message string, details map[string]any) error {
	return NewDomainError(CodeAssignment, message, http.StatusConflict, details)
}

func NewItemFrozen(itemID, mergedInto string) error {
	return NewDomainError(CodeItemFrozen, "item was merged and accepts no further changes", http.StatusConflict, map[string]any{
		"item_id":     itemID,
		"merged_into": mergedInto,
	})
}

func NewMergeAborted(message string, details map[string]any) error {
	return NewDomainError(CodeMergeAborted, "merge aborted: "+message, http.StatusConflict, details)
}

func NewInvalidSchedule(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidSchedule, message, http.StatusUnprocessableEntity, details)
}

func NewAlreadyDispatching(scheduledMessageID string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["scheduled_message_id"] = scheduledMessageID
	return NewDomainError(CodeAlreadyDispatching, "scheduled message is already being dispatched", http.StatusConflict, details)
}

func NewConcurrentUpdate(itemID string) error {
	return NewDomainError(CodeConcurrentUpdate, "item was changed by another request", http.StatusConflict, map[string]any{
		"item_id": itemID,
	})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// MapError passes domain errors through and wraps everything else as internal.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
