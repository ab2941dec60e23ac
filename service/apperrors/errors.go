package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotConfigured   = "NOT_CONFIGURED"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeInternal        = "INTERNAL_ERROR"
)

// AppError carries an error kind plus context so callers can branch on
// kind instead of matching message strings.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func Validation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

func NotConfigured(message string) *AppError {
	return &AppError{Code: CodeNotConfigured, Message: message, HTTPStatus: http.StatusUnprocessableEntity}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

func ExternalService(message string, err error) *AppError {
	return &AppError{
		Code:       CodeExternalService,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func Timeout(message string, err error) *AppError {
	return &AppError{Code: CodeTimeout, Message: message, HTTPStatus: http.StatusGatewayTimeout, Err: err}
}

func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

func Internal(message string, err error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// IsCode reports whether err (or anything it wraps) is an AppError with
// the given code.
func IsCode(err error, code string) bool {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code == code
	}
	return false
}

// WriteJSON renders err to the response writer. Non-AppError values are
// masked as internal errors so storage details never leak to clients.
func WriteJSON(w http.ResponseWriter, err error) {
	var app *AppError
	if !errors.As(err, &app) {
		app = Internal("unexpected error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(app.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    app.Code,
		"message": app.Message,
		"details": app.Details,
	})
}
