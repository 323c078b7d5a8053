package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	msgRequired = "This field is required."
	msgBlank    = "This field may not be blank."
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields under their JSON names so errors line up with the
	// request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validator exposes the shared validator so the HTTP layer can plug it into
// echo.
func Validator() *validator.Validate { return validate }

// Check validates the struct tags of v and returns a *ValidationError, or nil.
func Check(v any) error {
	return checkStruct(v).Err()
}

// checkStruct runs the struct tags of v and converts failures into a
// ValidationError keyed by JSON field name.
func checkStruct(v any) *ValidationError {
	out := &ValidationError{}
	err := validate.Struct(v)
	if err == nil {
		return out
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		out.AddNonField(err.Error())
		return out
	}
	for _, fe := range ves {
		out.Add(fe.Field(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		if isString {
			return msgBlank
		}
		return msgRequired
	case "min":
		if isString {
			return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "email":
		return "Enter a valid email address."
	}
	return "Invalid value."
}

// checkPrice enforces a non-negative amount with at most two decimal places.
func checkPrice(p decimal.Decimal) []string {
	var msgs []string
	if p.IsNegative() {
		msgs = append(msgs, "Ensure this value is greater than or equal to 0.")
	}
	if p.Exponent() < -2 && !p.Equal(p.Round(2)) {
		msgs = append(msgs, "Ensure that there are no more than 2 decimal places.")
	}
	return msgs
}

func invalidPK(id uint64) string {
	return fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id)
}
