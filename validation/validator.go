package validation

import (
	"fmt"
	"strings"

	"github.com/kbukum/memexec/errors"
)

// FieldError is a validation failure for one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string { return e.Field + ": " + e.Message }

// Validator accumulates field errors from struct tags and ad hoc checks so a
// caller gets every problem in one error.
//
//	err := validation.New().
//		Struct(cmd).
//		Check(len(cmd.Image) > 0, "image", "must not be empty").
//		Err()
type Validator struct {
	errs  []FieldError
	cause error
}

// New creates an empty Validator.
func New() *Validator { return &Validator{} }

// Add records a field error.
func (v *Validator) Add(field, message string) *Validator {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
	return v
}

// Check records message for field unless ok.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.Add(field, message)
	}
	return v
}

// Checkf is Check with a formatted field name, for indexed fields.
func (v *Validator) Checkf(ok bool, message, format string, args ...any) *Validator {
	if !ok {
		v.Add(fmt.Sprintf(format, args...), message)
	}
	return v
}

// Struct runs the `validate` tags of s. A value the tag engine cannot
// inspect, such as a nil pointer, is kept as the cause of the final error.
func (v *Validator) Struct(s any) *Validator {
	fields, err := structErrors(s)
	if err != nil && v.cause == nil {
		v.cause = err
	}
	v.errs = append(v.errs, fields...)
	return v
}

// Nested records the field errors of another validation result under
// prefix, so config sections report "launcher.retry.factor".
func (v *Validator) Nested(prefix string, err error) *Validator {
	if err == nil {
		return v
	}
	var fields []FieldError
	if appErr, ok := errors.AsAppError(err); ok {
		fields, _ = appErr.Details["fields"].([]FieldError)
	}
	if len(fields) == 0 {
		return v.Add(prefix, err.Error())
	}
	for _, f := range fields {
		v.Add(prefix+"."+f.Field, f.Message)
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.errs) > 0 || v.cause != nil }

func (v *Validator) Errors() []FieldError { return v.errs }

// AppError returns an INVALID_INPUT error listing every field error, or nil.
func (v *Validator) AppError() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	if len(v.errs) == 0 {
		return errors.Validation("validation failed").WithCause(v.cause)
	}
	parts := make([]string, len(v.errs))
	for i, e := range v.errs {
		parts[i] = e.String()
	}
	appErr := errors.Validation(strings.Join(parts, "; ")).WithDetail("fields", v.errs)
	if v.cause != nil {
		appErr.WithCause(v.cause)
	}
	return appErr
}

// Err is AppError as a plain error, so success compares equal to nil.
func (v *Validator) Err() error {
	if appErr := v.AppError(); appErr != nil {
		return appErr
	}
	return nil
}
