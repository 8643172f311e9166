package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with the service's custom rules.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with domain rules registered.
func New() *Validator {
	v := validator.New()

	// credit_earned must be a percentage
	_ = v.RegisterValidation("credit_range", func(fl validator.FieldLevel) bool {
		val := fl.Field().Float()
		return val >= 0 && val <= 100
	})

	return &Validator{validate: v}
}

// Validate validates a struct and converts failures to ValidationErrors.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidationError describes a single failed field rule.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates field failures for one request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// ToValidationErrors converts library errors into the service's error shape.
func ToValidationErrors(err error) ValidationErrors {
	var out ValidationErrors
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Field:   strings.ToLower(fe.Field()),
				Message: messageForTag(fe),
				Value:   fe.Value(),
				Rule:    fe.Tag(),
			})
		}
		return out
	}
	return ValidationErrors{{Field: "request", Message: err.Error(), Rule: "struct"}}
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "credit_range":
		return "must be between 0 and 100"
	default:
		return fmt.Sprintf("failed rule %q", fe.Tag())
	}
}
