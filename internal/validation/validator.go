// Package validation wraps go-playground/validator with a singleton instance,
// JSON field names in error details and the custom "answer" rule used by
// questionnaire payloads.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"watchwise/internal/apperr"
	"watchwise/internal/prefs"
)

// Answer size limits.
const (
	MaxSingleAnswerLen = 500
	MaxAnswerItems     = 20
	MaxAnswerItemLen   = 100
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("answer", validateAnswer)
	})
	return validate
}

// validateAnswer enforces the answer limits: a single value of at most 500
// characters, or at most 20 values of at most 100 characters each.
func validateAnswer(fl validator.FieldLevel) bool {
	a, ok := fl.Field().Interface().(prefs.Answer)
	if !ok {
		return false
	}
	if len(a) <= 1 {
		return len(a) == 0 || utf8.RuneCountInString(a[0]) <= MaxSingleAnswerLen
	}
	if len(a) > MaxAnswerItems {
		return false
	}
	for _, v := range a {
		if utf8.RuneCountInString(v) > MaxAnswerItemLen {
			return false
		}
	}
	return true
}

// Struct validates s and returns an *apperr.FieldError keyed by JSON field
// path on failure.
func Struct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = message(fe)
	}
	return &apperr.FieldError{Fields: fields}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("must be %s %s", map[string]string{"gte": ">=", "lte": "<="}[fe.Tag()], fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "answer":
		return fmt.Sprintf("must be one value of at most %d characters or at most %d values of at most %d characters",
			MaxSingleAnswerLen, MaxAnswerItems, MaxAnswerItemLen)
	default:
		return "is invalid"
	}
}
