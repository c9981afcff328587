package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	// money is compared as a number so gte/lte tags work on decimals
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, _ := f.Interface().(decimal.Decimal).Float64()
		return d
	}, decimal.Decimal{})
	return v
}

// Validate checks the validate tags of a struct and reports the first failing
// field as an ErrValidation.
func Validate(s any) error { return validateNamed("", s) }

func validateNamed(prefix string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		return Validationf("%s%s", prefix, describe(fields[0]))
	}
	return Validationf("%v", err)
}

// ValidEmail reports whether s is an email address.
func ValidEmail(s string) bool {
	return validate.Var(strings.TrimSpace(s), "required,email") == nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s%s", field, fe.Param(), unit)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s%s", field, fe.Param(), unit)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	}
	return field + " is invalid"
}
