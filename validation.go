package credcore

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct reports the first failing field as a ReasonInvalidInput
// error.
func (e *Engine) validateStruct(v any) error {
	err := e.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		return invalidField(f.Field(), fieldMessage(f.Field(), f.Tag()))
	}
	return validationError(ReasonInvalidInput)
}

func (e *Engine) validateEmail(field, email string) error {
	if err := e.validate.Var(email, "required,email,max=254"); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return invalidField(field, fieldMessage(field, fields[0].Tag()))
		}
		return invalidField(field, fieldMessage(field, "email"))
	}
	return nil
}

func fieldMessage(field, tag string) string {
	label := strings.ReplaceAll(field, "_", " ")
	switch tag {
	case "required", "required_unless":
		return fmt.Sprintf("%s is required", label)
	case "email":
		return "enter a valid email address"
	case "e164":
		return "enter the phone number in international format, for example +15551234567"
	case "oneof":
		return fmt.Sprintf("%s is not supported", label)
	case "max":
		return fmt.Sprintf("%s is too long", label)
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}
