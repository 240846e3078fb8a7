package resolver

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vrsandeep/anime-sync/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError reports malformed caller input. It is raised before any
// provider is contacted.
type ValidationError struct {
	Field   string
	Tag     string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report query parameter names rather than Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateQuery checks a listing query and returns the first problem as a
// *ValidationError.
func ValidateQuery(q models.ListQuery) error {
	err := getValidator().Struct(q)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "query", Tag: "invalid", Message: err.Error()}
	}
	fe := fieldErrs[0]
	return &ValidationError{Field: fe.Field(), Tag: fe.Tag(), Message: translate(fe)}
}

func translate(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
