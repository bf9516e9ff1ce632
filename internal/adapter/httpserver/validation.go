package httpserver

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError is one field-level problem in a request DTO.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationDetails flattens validator output into the error envelope's
// details shape.
func validationDetails(err error) []ValidationError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []ValidationError{{Field: "body", Code: "INVALID", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Code:    strings.ToUpper(fe.Tag()),
			Message: fe.Error(),
		})
	}
	return out
}
