package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError carries an error code and the HTTP status the front door should answer with.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
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

// Is matches two AppErrors by code so that wrapped errors still compare equal to the kind sentinels.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return other.Err == nil && other.Code == e.Code
}

// New creates a new AppError without wrapping.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap creates an AppError that wraps an existing error.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Validation wraps err as an input validation failure.
func Validation(message string, err error) error {
	if err == nil {
		err = errors.New(message)
	}
	return Wrap(err, CodeInvalidInput, message, http.StatusBadRequest)
}

// External wraps err as a failure of a collaborating service.
func External(message string, err error) error {
	if err == nil {
		err = errors.New(message)
	}
	return Wrap(err, CodeExternal, message, http.StatusBadGateway)
}
