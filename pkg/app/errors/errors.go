// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryDataError The client sent invalid data, e.g. a malformed query parameter.
	CategoryDataError Category = iota + 1
	// CategoryUnauthorized The client presented no credential or an invalid one
	CategoryUnauthorized
	// CategoryForbidden The client is authenticated but lacks permission for the operation
	CategoryForbidden
	// CategoryResourceNotFound The client is attempting to access a resource that does not exist
	CategoryResourceNotFound
	// CategoryDataConflict The request conflicts with current state, e.g. a run already in progress
	CategoryDataConflict
	// CategoryTooManyRequests The client exhausted its request quota
	CategoryTooManyRequests
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryUnauthorized:
		return "CategoryUnauthorized"
	case CategoryForbidden:
		return "CategoryForbidden"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryTooManyRequests:
		return "CategoryTooManyRequests"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError carries the message shown to the client next to the error that is logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// IsInternalError reports whether err is not a client-caused ServiceError.
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category < CategoryGeneralError {
		return false
	}
	return true
}

func newError(cat Category, err error, fallback, message string) error {
	if err == nil {
		err = errors.New(fallback)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error".
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "internal server error", "Internal Server Error")
}

// BadRequestError returns an error with category DataError
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, "bad request: "+message, message)
}

// UnAuthorizedError returns an error with category CategoryUnauthorized
func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, "unauthorized", message)
}

// ForbiddenError returns an error with category CategoryForbidden
func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, "forbidden", message)
}

// ResourceNotFoundError returns an error with category ResourceNotFound
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, "resource not found: "+message, message)
}

// ConflictError returns an error with category CategoryDataConflict
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, "conflict", message)
}

// TooManyRequestsError returns an error with category CategoryTooManyRequests
func TooManyRequestsError(err error, message string) error {
	return newError(CategoryTooManyRequests, err, "too many requests", message)
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
