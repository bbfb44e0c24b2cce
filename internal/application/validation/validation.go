// Package validation checks command structs and converts failures into
// coded domain errors.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/anticipa/backend/internal/domain/shared"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates v against its `validate` tags. The first failing field is
// reported as "<field>_required" for missing values and "invalid_<field>"
// for everything else.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return shared.NewValidationError("invalid_command", "invalid command: %v", err)
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return shared.NewValidationError(field+"_required", "%s is required", field)
	case "max":
		return shared.NewValidationError("invalid_"+field, "%s must be at most %s characters", field, fe.Param())
	default:
		return shared.NewValidationError("invalid_"+field, "%s failed %q validation", field, fe.Tag())
	}
}
