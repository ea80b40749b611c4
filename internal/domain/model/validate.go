//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/target/institute-web/internal/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names so messages match request payloads.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "user" || s == "admin"
		})
		validate = v
	})
	return validate
}

// validateStruct runs tag validation and converts the first failure to a field-level AppError.
func validateStruct(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request")
	}
	fe := verrs[0]
	return apperrors.ValidationField(fe.Field(), messageFor(fe))
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required."
	case "max":
		return fe.Field() + " cannot exceed " + fe.Param() + " characters."
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters."
	case "email":
		return fe.Field() + " must be a valid email address."
	case "url", "http_url":
		return fe.Field() + " must be a valid URL."
	case "role":
		return fe.Field() + " must be one of: user, admin."
	case "gte", "lte":
		return fe.Field() + " is out of range."
	default:
		return fe.Field() + " is invalid."
	}
}
