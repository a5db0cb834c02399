// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validation wraps go-playground/validator with human-readable
// error translation for API request bodies.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes a single failed field validation.
type ValidationError struct {
	// FieldName is the struct field (JSON name when available).
	FieldName string `json:"field"`

	// Rule is the validation tag that failed (e.g. "min", "required").
	Rule string `json:"rule"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.FieldName, e.Message)
}

// RequestValidationError aggregates all field failures for one request.
type RequestValidationError struct {
	Fields []ValidationError `json:"fields"`
}

// Error implements the error interface.
func (ve *RequestValidationError) Error() string {
	msgs := make([]string, len(ve.Fields))
	for i := range ve.Fields {
		msgs[i] = ve.Fields[i].Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator instance, configured to report
// JSON tag names instead of Go field names.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
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

// ValidateStruct validates s and returns nil or a RequestValidationError.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return &RequestValidationError{
			Fields: []ValidationError{{FieldName: "request", Rule: "invalid", Message: err.Error()}},
		}
	}

	out := &RequestValidationError{Fields: make([]ValidationError, 0, len(errs))}
	for _, fe := range errs {
		out.Fields = append(out.Fields, ValidationError{
			FieldName: fe.Field(),
			Rule:      fe.Tag(),
			Message:   translateError(fe),
		})
	}
	return out
}

// translateError produces a readable message for common validation tags.
func translateError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
