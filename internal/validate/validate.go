// Package validate checks user input before it is sent to the clinic API, so
// malformed forms fail without a network round trip.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error describes the first invalid field of a form.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	v      = newValidator()
	digits = regexp.MustCompile(`^[0-9]+$`)
)

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := val.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return digits.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return val
}

// Struct validates a form and returns a *Error for the first failing field.
func Struct(form any) error {
	err := v.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &Error{Field: fe.Field(), Message: message(fe)}
}

func message(fe validator.FieldError) string {
	label := labels[fe.Field()]
	if label == "" {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Enter a valid email address"
	case "eqfield":
		return "Passwords do not match"
	case "nefield":
		return "New password must be different from the current password"
	case "len":
		if fe.Field() == "otp" {
			return fmt.Sprintf("OTP must be exactly %s digits", fe.Param())
		}
		return fmt.Sprintf("%s must be %s characters", label, fe.Param())
	case "digits":
		return label + " must contain digits only"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s must be between %d and %d", label, minAge, maxAge)
	case "url":
		return label + " must be a valid URL"
	}
	return label + " is invalid"
}

var labels = map[string]string{
	"email":           "Email",
	"password":        "Password",
	"confirmPassword": "Password confirmation",
	"name":            "Name",
	"confirmationId":  "Confirmation ID",
	"oldPassword":     "Current password",
	"newPassword":     "New password",
	"otp":             "OTP",
	"patientName":     "Patient name",
	"age":             "Age",
	"phone":           "Phone",
	"imageUrl":        "Image URL",
}
