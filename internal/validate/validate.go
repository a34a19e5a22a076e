// Package validate checks request structs and reports failures as validation errors.
package validate

import (
	"errors"
	"regexp"
	"strings"

	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates s against its `validate` tags. Failures are returned as a
// single apperr validation error listing every offending field.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindValidation, "invalid request", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		param := fe.Param()

		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must be at least "+param+" characters")
		case "max":
			msgs = append(msgs, field+" must be at most "+param+" characters")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "slug":
			msgs = append(msgs, field+" must contain only lowercase letters, digits and single hyphens")
		case "oneof":
			msgs = append(msgs, field+" must be one of: "+param)
		case "url":
			msgs = append(msgs, field+" must be a valid URL")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return apperr.Validation(strings.Join(msgs, ", "))
}
