package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	apperrors "appointease/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var (
	clockRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	phoneRegex = regexp.MustCompile(`^[0-9 ()+-]+$`)
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// validPhone accepts digits with spaces, "+", "-" and parentheses, holding
// 7 to 15 digits. E.164 numbers pass as well as local forms like "555-0123".
func validPhone(s string) bool {
	if !phoneRegex.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// AppError converts the collected problems into the 422 envelope.
func (v ValidationErrors) AppError(message string) *apperrors.AppError {
	return apperrors.Validation(message, map[string]any{"errors": []ValidationError(v)})
}

// Field builds a single-problem ValidationErrors.
func Field(field, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message}}
}

// Validator wraps go-playground/validator with JSON field names and the
// "clock" (HH:MM) and "phone" tags.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return validPhone(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Struct validates s and returns ValidationErrors for rule violations.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return translate(validationErrs)
	}
	return err
}

func translate(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "phone":
			message = fmt.Sprintf("%s must be a valid phone number (e.g., +16502530000)", err.Field())
		case "clock":
			message = fmt.Sprintf("%s must be a time of day in HH:MM format", err.Field())
		case "numeric":
			message = fmt.Sprintf("%s must contain only digits", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		}

		out = append(out, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return out
}
