package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so clients can map errors back to their payload
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// validationError converts validator output into a domain.ValidationError
func validationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &domain.ValidationError{Fields: map[string]string{"body": err.Error()}}
	}

	fields := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			fields[field] = "field is required"
		case "notblank":
			fields[field] = "must not be blank"
		case "min":
			fields[field] = "must contain at least " + e.Param() + " item(s)"
		case "max":
			if e.Kind() == reflect.Slice {
				fields[field] = "must contain at most " + e.Param() + " items"
			} else {
				fields[field] = "must be at most " + e.Param() + " characters"
			}
		default:
			fields[field] = "validation failed on " + e.Tag()
		}
	}
	return &domain.ValidationError{Fields: fields}
}
