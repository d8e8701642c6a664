// Package validation checks request DTOs with go-playground/validator and
// reports the first failure as a field-level validation error.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/utils/money"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	billIDRegex  = regexp.MustCompile(`^BR-[0-9]{6,}$`)
	orderIDRegex = regexp.MustCompile(`^TT-[0-9]{6,}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Decimals validate as their string form so required/omitempty work.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			if d.IsZero() {
				return ""
			}
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	mustRegister(v, "billid", func(fl validator.FieldLevel) bool {
		return billIDRegex.MatchString(fl.Field().String())
	})
	mustRegister(v, "orderid", func(fl validator.FieldLevel) bool {
		return orderIDRegex.MatchString(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Struct validates s and returns the first failure as a Validation error.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.Validation("", "invalid request")
	}
	fe := fieldErrs[0]
	return apperrors.Validation(fe.Field(), message(fe))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "billid":
		return "must be a bill id like BR-000123"
	case "orderid":
		return "must be an order id like TT-000123"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Amount converts a major-unit request amount to minor units.
func Amount(field string, d decimal.Decimal) (money.Amount, error) {
	if !d.IsPositive() {
		return 0, apperrors.Validation(field, "must be greater than 0")
	}
	a, err := money.FromMajor(d)
	switch {
	case errors.Is(err, money.ErrFractionalMinorUnit):
		return 0, apperrors.Validation(field, "must have at most two decimal places")
	case err != nil:
		return 0, apperrors.ErrAmountOverflow
	}
	return a, nil
}
