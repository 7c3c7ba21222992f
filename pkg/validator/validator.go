// Package validator holds the custom binding tags shared by request models.
package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	TagDate  = "datestr"
	TagClock = "clock"
)

// FieldError is one failed rule, named by its JSON field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email",
	"min":      "is too small",
	"max":      "is too long",
	"len":      "has the wrong length",
	"oneof":    "is not an accepted value",
	TagDate:    "must be a date in YYYY-MM-DD form",
	TagClock:   "must be a time in HH:mm form",
}

func isLayout(layout string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != len(layout) {
			return false
		}
		_, err := time.Parse(layout, s)
		return err == nil
	}
}

// Register installs the custom tags and reports fields by their JSON names.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation(TagDate, isLayout("2006-01-02")); err != nil {
		return fmt.Errorf("register %s: %w", TagDate, err)
	}
	if err := v.RegisterValidation(TagClock, isLayout("15:04")); err != nil {
		return fmt.Errorf("register %s: %w", TagClock, err)
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return nil
}

// Describe flattens validation errors into per-field messages. Errors that
// are not validation failures yield nil.
func Describe(err error) []FieldError {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %s validation", e.Tag())
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}
