package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"weatheringest/internal/types"
)

// Validator checks decoded request parameters and reports failures as
// validation_invalid_parameter AppErrors.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator whose field names come from the `query`
// struct tag, so error details name the parameter the client sent.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("query"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// ValidateStruct returns nil or an AppError naming the first invalid field.
func (val *Validator) ValidateStruct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "parameter validation failed", err)
	}

	fe := verrs[0]
	return types.NewAppError(
		types.ErrCodeValidationInvalidParameter,
		describe(fe),
		err,
	).WithDetails(map[string]any{
		"parameter": fe.Field(),
		"rule":      fe.Tag(),
	})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
