package app

import (
	"errors"
	"fmt"
	"net/http"

	"formdesk/api/internal/auth"
	"formdesk/api/internal/blob"
	"formdesk/api/internal/lock"
	"formdesk/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

const (
	CodeInvalidTitle   = "INVALID_TITLE"
	CodeInvalidData    = "INVALID_DATA"
	CodeInvalidBody    = "INVALID_BODY"
	CodeInvalidQuery   = "INVALID_QUERY"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeSaveInProgress = "SAVE_IN_PROGRESS"
	CodeInternal       = "INTERNAL_ERROR"
)

func errNotFound() *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, "Form not found", nil)
}

// mapError converts an error into the HTTP status and body fields. Anything
// not recognised is an internal error with a generic message.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrInvalidTitle):
		return http.StatusBadRequest, CodeInvalidTitle, "Title is required", nil
	case errors.Is(err, store.ErrInvalidData):
		return http.StatusBadRequest, CodeInvalidData, "rawJson must be a JSON object", nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "Form not found", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, CodeConflict, "Form changed concurrently, reload and retry", nil
	case errors.Is(err, lock.ErrLocked):
		return http.StatusConflict, CodeSaveInProgress, "Another save of this form is in progress", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil
	}
	return http.StatusInternalServerError, CodeInternal, "Internal error", nil
}
