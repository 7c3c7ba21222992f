package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, errors.ErrConflict).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// StatusCode is picked up by the error middleware.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest, CodeInvalidFlagType:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeSlotUnavailable, CodeConflict, CodeDuplicateRequest:
		return http.StatusConflict
	case CodeInvalidTransition, CodeRefundNotPermitted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	CodeNotFound ErrorCode = iota + 1000
	CodeBadRequest
	CodeUnauthorized
	CodeInternal
	CodeSlotUnavailable
	CodeConflict
	CodeDuplicateRequest
	CodeInvalidTransition
	CodeInvalidFlagType
	CodeRefundNotPermitted
)

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrBadRequest         = &AppError{Code: CodeBadRequest, Message: "bad request"}
	ErrUnauthorized       = &AppError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrInternal           = &AppError{Code: CodeInternal, Message: "internal server error"}
	ErrSlotUnavailable    = &AppError{Code: CodeSlotUnavailable, Message: "slot unavailable"}
	ErrConflict           = &AppError{Code: CodeConflict, Message: "slot already booked"}
	ErrDuplicateRequest   = &AppError{Code: CodeDuplicateRequest, Message: "duplicate booking request"}
	ErrInvalidTransition  = &AppError{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrInvalidFlagType    = &AppError{Code: CodeInvalidFlagType, Message: "invalid flag type"}
	ErrRefundNotPermitted = &AppError{Code: CodeRefundNotPermitted, Message: "refund not permitted"}
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func SlotUnavailable(date, time string) *AppError {
	return &AppError{
		Code:    CodeSlotUnavailable,
		Message: fmt.Sprintf("no available slot on %s at %s", date, time),
	}
}

func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Err:     err,
	}
}

func DuplicateRequest(message string) *AppError {
	return &AppError{
		Code:    CodeDuplicateRequest,
		Message: message,
	}
}

func InvalidTransition(kind, from, to string) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move %s from %q to %q", kind, from, to),
	}
}

func InvalidFlagType(flagType string) *AppError {
	return &AppError{
		Code:    CodeInvalidFlagType,
		Message: fmt.Sprintf("invalid flag type %q", flagType),
	}
}

func RefundNotPermitted(message string) *AppError {
	return &AppError{
		Code:    CodeRefundNotPermitted,
		Message: message,
	}
}

// As extracts the AppError from err, wrapping unknown errors as internal.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
