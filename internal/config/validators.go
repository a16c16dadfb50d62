package config

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// registerExclusive adds a custom validator ensuring two fields are mutually exclusive,
// and reports fields by their label tag.
func registerExclusive(validate *validator.Validate) error {
	if err := validate.RegisterValidation("exclusive", validateExclusive); err != nil {
		return fmt.Errorf("registering exclusive validation: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		const splitSize = 2

		name := strings.SplitN(fld.Tag.Get("label"), ",", splitSize)[0]
		if name == "-" || name == "" {
			return fld.Name
		}

		return name
	})

	return nil
}

// validateExclusive checks if two fields are mutually exclusive.
// Returns false if both fields are set.
func validateExclusive(fl validator.FieldLevel) bool {
	field := fl.Field()
	otherField := fl.Parent().FieldByName(fl.Param())

	if !field.IsValid() || !otherField.IsValid() {
		return true
	}

	return field.IsZero() || otherField.IsZero()
}

// describe turns validation errors into one readable error per failed field.
func describe(err error) error {
	var invalid validator.ValidationErrors
	if !stderrors.As(err, &invalid) {
		return err
	}

	messages := make([]string, 0, len(invalid))

	for _, fe := range invalid {
		messages = append(messages, message(fe))
	}

	return stderrors.New(strings.Join(messages, "; "))
}

func message(fe validator.FieldError) string {
	name := fe.Field()

	switch fe.Tag() {
	case "exclusive":
		other := fe.Param()
		if f, ok := reflect.TypeOf(Config{}).FieldByName(other); ok {
			if label := f.Tag.Get("label"); label != "" {
				other = label
			}
		}

		return fmt.Sprintf("%s and %s are mutually exclusive", name, other)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value())
	case "min":
		switch fe.Kind() { //nolint:exhaustive
		case reflect.Slice:
			return fmt.Sprintf("at least %s %s required", fe.Param(), name)
		case reflect.String:
			return fmt.Sprintf("%s must be at least %s characters long, got %q", name, fe.Param(), fe.Value())
		}

		return fmt.Sprintf("%s must be at least %s, got %v", name, fe.Param(), fe.Value())
	case "startswith":
		return fmt.Sprintf("%s must start with %q, got %q", name, fe.Param(), fe.Value())
	case "ne":
		return fmt.Sprintf("%s must not be %q", name, fe.Param())
	case "required":
		return name + " is required"
	default:
		return fmt.Sprintf("%s failed the %q check", name, fe.Tag())
	}
}
