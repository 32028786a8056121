package apperror

import "net/http"

const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInvalidState = "INVALID_STATE"

	CodeExternal      = "EXTERNAL_SERVICE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// Kind sentinels. Use errors.Is(err, apperror.ErrNotFound) and friends.
var (
	ErrValidation   = New(CodeInvalidInput, "The provided input is invalid", http.StatusBadRequest)
	ErrNotFound     = New(CodeNotFound, "Resource not found", http.StatusNotFound)
	ErrConflict     = New(CodeConflict, "Resource was modified concurrently", http.StatusConflict)
	ErrInvalidState = New(CodeInvalidState, "Resource is not in a state that allows this operation", http.StatusConflict)
	ErrExternal     = New(CodeExternal, "A downstream service failed", http.StatusBadGateway)
	ErrInternal     = New(CodeInternalError, "An unexpected error occurred", http.StatusInternalServerError)
)
