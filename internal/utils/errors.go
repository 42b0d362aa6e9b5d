package utils

import "fmt"

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

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "VALIDATION_FAILED"

	// Authentication/Authorization errors
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrForbidden       = "FORBIDDEN" // Authenticated but not allowed (e.g. deleting another author's post)
	ErrInvalidToken    = "INVALID_TOKEN"

	// Board-specific errors
	ErrStaleReference = "STALE_REFERENCE"  // Event or request names an entity that is gone
	ErrToggleInFlight = "TOGGLE_IN_FLIGHT" // A like toggle is already pending on this post
	ErrReplyDepth     = "REPLY_DEPTH"      // Replies to replies are not modeled
	ErrTopicMismatch  = "TOPIC_MISMATCH"

	// Transport/store errors
	ErrTransient    = "TRANSIENT_FAILURE"
	ErrDatabase     = "DATABASE_ERROR"
	ErrActorTimeout = "ACTOR_TIMEOUT"

	// Rate limiting
	ErrTooManyRequests = "TOO_MANY_REQUESTS"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

// Specific error creators for common cases
func NewUnauthenticatedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthenticated,
		Message: "Unauthenticated: " + reason,
	}
}

func NewForbiddenError(reason string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "Forbidden: " + reason,
	}
}

func NewValidationError(reason string) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: "Validation failed: " + reason,
	}
}

func NewStaleReferenceError(what string) *AppError {
	return &AppError{
		Code:    ErrStaleReference,
		Message: "Stale reference: " + what,
	}
}

func NewTransientError(message string, originalErr error) *AppError {
	return &AppError{
		Code:    ErrTransient,
		Message: message,
		Origin:  originalErr,
	}
}

func NewActorTimeoutError(actorName string) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
	}
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsTransient reports whether the failed operation may succeed if retried.
func IsTransient(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrTransient ||
			appErr.Code == ErrDatabase ||
			appErr.Code == ErrActorTimeout
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrStaleReference:
		return 404 // http.StatusNotFound
	case ErrInvalidInput, ErrReplyDepth, ErrTopicMismatch:
		return 400 // http.StatusBadRequest
	case ErrUnauthenticated, ErrInvalidToken:
		return 401 // http.StatusUnauthorized
	case ErrForbidden:
		return 403 // http.StatusForbidden
	case ErrDuplicate, ErrToggleInFlight:
		return 409 // http.StatusConflict
	case ErrTooManyRequests:
		return 429 // http.StatusTooManyRequests
	case ErrTransient, ErrDatabase, ErrActorTimeout:
		return 500 // http.StatusInternalServerError
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}

func ErrorMessage(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Message
	}
	return fmt.Sprintf("unexpected error: %v", err)
}
