package validation

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	structValidator *validator.Validate
	structOnce      sync.Once
)

// engine returns the shared go-playground validator with memexec's tags:
//
//	nonul    the string has no NUL byte (argv, env, paths handed to the kernel)
//	envpair  the string is KEY=VALUE with a non-empty KEY
func engine() *validator.Validate {
	structOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(configKey)
		_ = v.RegisterValidation("nonul", func(fl validator.FieldLevel) bool {
			return !strings.ContainsRune(fl.Field().String(), 0)
		})
		_ = v.RegisterValidation("envpair", func(fl validator.FieldLevel) bool {
			key, _, ok := strings.Cut(fl.Field().String(), "=")
			return ok && key != ""
		})
		structValidator = v
	})
	return structValidator
}

// configKey names a field by its mapstructure or json key, falling back to
// the snake_case Go name.
func configKey(fld reflect.StructField) string {
	for _, tag := range []string{"mapstructure", "json"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return toSnakeCase(fld.Name)
}

// Validate checks a struct against its `validate` tags. Failures come back as
// one INVALID_INPUT AppError with a "fields" detail.
func Validate(s any) error {
	return New().Struct(s).Err()
}

// structErrors runs the tag checks on s and converts the failures.
func structErrors(s any) ([]FieldError, error) {
	err := engine().Struct(s)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil, err
	}
	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{Field: fieldPath(e), Message: describe(e)})
	}
	return out, nil
}

// fieldPath drops the root struct name: RetryConfig.max_attempts -> max_attempts,
// Command.env[2] -> env[2].
func fieldPath(e validator.FieldError) string {
	if _, rest, ok := strings.Cut(e.Namespace(), "."); ok {
		return rest
	}
	return e.Field()
}

func describe(e validator.FieldError) string {
	sized := ""
	switch e.Kind() {
	case reflect.String:
		sized = " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		sized = " items"
		if e.Type().Elem().Kind() == reflect.Uint8 {
			sized = " bytes"
		}
	}

	switch e.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + e.Param()
	case "min":
		return "must be at least " + e.Param() + sized
	case "max":
		return "must be at most " + e.Param() + sized
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "gtefield":
		return "must not be less than " + toSnakeCase(e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "nonul":
		return "must not contain NUL bytes"
	case "envpair":
		return "must be KEY=VALUE"
	default:
		return "failed the " + e.Tag() + " check"
	}
}

// toSnakeCase keeps acronyms together: RunID -> run_id.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
