package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// numeric tags compare against float64
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch d := field.Interface().(type) {
		case decimal.Decimal:
			return d.InexactFloat64()
		case decimal.NullDecimal:
			if !d.Valid {
				return nil
			}
			return d.Decimal.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{}, decimal.NullDecimal{})

	return v
}

func validateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return toValidationError(err, "")
	}
	return nil
}

// validateField checks a single patch value against tag.
func validateField(field string, value interface{}, tag string) *ValidationError {
	if err := validate.Var(value, tag); err != nil {
		var ve *ValidationError
		if errors.As(toValidationError(err, field), &ve) {
			return ve
		}
		return invalidField(field, "Invalid value")
	}
	return nil
}

func toValidationError(err error, field string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{}
	for _, e := range verrs {
		name := e.Field()
		if field != "" {
			name = field
		}
		out.Fields = append(out.Fields, FieldError{Field: name, Message: fieldMessage(e)})
	}
	return out
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Must be at least " + e.Param() + " characters"
	case "max":
		return "Must be at most " + e.Param() + " characters"
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "lt":
		return "Must be less than " + e.Param()
	case "http_url":
		return "Must be an http or https URL"
	default:
		return "Invalid value"
	}
}

// mergeValidation folds several optional field failures into one error.
func mergeValidation(errs ...*ValidationError) error {
	out := &ValidationError{}
	for _, e := range errs {
		if e != nil {
			out.Fields = append(out.Fields, e.Fields...)
		}
	}
	if len(out.Fields) == 0 {
		return nil
	}
	return out
}
