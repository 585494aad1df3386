package apperror

import (
	"errors"
	"net/http"
)

type Error struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Internal   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// Job failure taxonomy. These codes are also the `type` of stream error frames.
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeAuth         = "AUTH_ERROR"
	CodeRateLimit    = "GEMINI_RATE_LIMIT"
	CodeQuota        = "GEMINI_QUOTA"
	CodeOverloaded   = "GEMINI_OVERLOADED"
	CodeNetwork      = "NETWORK_ERROR"
	CodeTimeout      = "TIMEOUT"
	CodeParse        = "PARSE_ERROR"
	CodeUnknown      = "UNKNOWN_ERROR"
	CodeCancelled    = "CANCELLED"
)

// StatusClientClosedRequest is reported for cancelled jobs.
const StatusClientClosedRequest = 499

var (
	ErrInvalidInput = &Error{
		Code:       CodeInvalidInput,
		Message:    "The job options or source reference are invalid",
		StatusCode: http.StatusBadRequest,
	}

	ErrAuth = &Error{
		Code:       CodeAuth,
		Message:    "Provider credentials are missing or misconfigured",
		StatusCode: http.StatusUnauthorized,
	}

	ErrRateLimit = &Error{
		Code:       CodeRateLimit,
		Message:    "The AI provider rate limit was hit",
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
	}

	ErrQuota = &Error{
		Code:       CodeQuota,
		Message:    "The AI provider quota is exhausted",
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
	}

	ErrOverloaded = &Error{
		Code:       CodeOverloaded,
		Message:    "The AI provider is overloaded",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}

	ErrNetwork = &Error{
		Code:       CodeNetwork,
		Message:    "Could not reach the AI provider",
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
	}

	ErrTimeout = &Error{
		Code:       CodeTimeout,
		Message:    "The AI provider call timed out",
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  true,
	}

	ErrParse = &Error{
		Code:       CodeParse,
		Message:    "The AI provider returned a malformed response",
		StatusCode: http.StatusBadGateway,
	}

	ErrUnknown = &Error{
		Code:       CodeUnknown,
		Message:    "An unexpected provider error occurred",
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
	}

	ErrCancelled = &Error{
		Code:       CodeCancelled,
		Message:    "The job was cancelled",
		StatusCode: StatusClientClosedRequest,
		Retryable:  true,
	}
)

var (
	ErrNotFound = &Error{
		Code:       "not_found",
		Message:    "The requested resource was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrUnauthorized = &Error{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrBadRequest = &Error{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrConflict = &Error{
		Code:       "conflict",
		Message:    "The job is not in a state that allows this operation",
		StatusCode: http.StatusConflict,
	}

	ErrRateLimited = &Error{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrInternal = &Error{
		Code:       "internal_error",
		Message:    "An unexpected error occurred. Please try again later",
		StatusCode: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &Error{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable. Please try again later",
		StatusCode: http.StatusServiceUnavailable,
	}
)

func New(code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Wrap(err error, appErr *Error) *Error {
	return &Error{
		Code:       appErr.Code,
		Message:    appErr.Message,
		StatusCode: appErr.StatusCode,
		Retryable:  appErr.Retryable,
		Internal:   err,
	}
}

func WrapWithMessage(err error, code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func SafeMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}
