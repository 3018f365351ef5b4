package utils

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Validation errors (missing/malformed field, self-targeted message)
	ErrInvalidInput = "INVALID_INPUT"

	// Resource errors
	ErrNotFound  = "NOT_FOUND"
	ErrDuplicate = "DUPLICATE"

	// Relationship errors: no accepted connection between two users
	ErrNoConnection = "NO_ACCEPTED_CONNECTION"

	// Authentication errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrInvalidToken = "INVALID_TOKEN"

	// Realtime channel errors (malformed event payloads)
	ErrChannel = "CHANNEL_ERROR"

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"

	ErrDatabase = "database_error"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: message,
	}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: message,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

func NewActorTimeoutError(actorName string, err error) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
		Origin:  err,
	}
}

// AsAppError unwraps err into an *AppError if one is in its chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == ErrUnauthorized ||
			appErr.Code == ErrInvalidToken
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
// Identity failures are 401; every other failure of the messaging core,
// business rule or persistence, is reported as 400.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrUnauthorized, ErrInvalidToken:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// PublicMessage returns the message safe to show to a client. Persistence
// and actor failures are collapsed into a generic text.
func PublicMessage(err error) string {
	appErr, ok := AsAppError(err)
	if !ok {
		return "Something went wrong"
	}
	switch appErr.Code {
	case ErrDatabase, ErrActorTimeout:
		return "Something went wrong"
	default:
		return appErr.Message
	}
}
