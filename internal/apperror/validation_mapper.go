package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MapValidationError turns binding errors into an INVALID_INPUT AppError naming the first bad field.
func MapValidationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		e := errs[0]
		field := strings.ToLower(e.Field())

		switch e.Tag() {
		case "required":
			return Wrap(err, CodeInvalidInput, fmt.Sprintf("%s is required", field), http.StatusBadRequest)
		default:
			return Wrap(err, CodeInvalidInput, fmt.Sprintf("%s is invalid", field), http.StatusBadRequest)
		}
	}

	return Wrap(err, CodeInvalidInput, "Invalid input", http.StatusBadRequest)
}
