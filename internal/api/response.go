package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/spigell/resume-updater/internal/apperror"
)

type Envelope struct {
	Ok    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Ok: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string, details any) {
	c.JSON(status, Envelope{
		Ok:    false,
		Error: &ErrorBody{Code: code, Message: message, Details: details},
	})
}

// writeError answers with the status and code carried by err. The error itself is kept on
// the gin context for the access log.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		err = apperror.MapValidationError(err)
	}

	httpErr := apperror.ToHTTP(err)
	fail(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

// bindError maps a failed ShouldBindJSON.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeError(c, err)
		return
	}
	writeError(c, apperror.Validation("request body is not valid JSON", err))
}
