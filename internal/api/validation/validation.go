// Package validation provides request validation and custom validators.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/audioscribe/speakerhub/internal/api/response"
	"github.com/audioscribe/speakerhub/internal/models"
)

// validate and decoder are package singletons. Struct() and Decode() are safe
// for concurrent use; registrations are not, so they happen only inside the
// constructors below and never after.
var (
	validate = newValidator()
	decoder  = newDecoder()
)

func newValidator() *validator.Validate {
	v := validator.New()

	if err := v.RegisterValidation("verification_state", validateVerificationState); err != nil {
		slog.Error("Failed to register verification_state validator", "error", err)
	}

	if err := v.RegisterValidation("no_null_bytes", validateNoNullBytes); err != nil {
		slog.Error("Failed to register no_null_bytes validator", "error", err)
	}

	return v
}

// newDecoder builds the query decoder with converters for the pointer types
// the filter structs use.
func newDecoder() *form.Decoder {
	d := form.NewDecoder()

	d.RegisterCustomTypeFunc(func(vals []string) (any, error) {
		if len(vals) == 0 || vals[0] == "" {
			return (*time.Time)(nil), nil
		}

		t, err := time.Parse(time.RFC3339, vals[0])
		if err != nil {
			return nil, fmt.Errorf("invalid date format, expected RFC3339 (ISO 8601): %w", err)
		}

		return &t, nil
	}, (*time.Time)(nil))

	d.RegisterCustomTypeFunc(func(vals []string) (any, error) {
		if len(vals) == 0 || vals[0] == "" {
			return (*models.VerificationState)(nil), nil
		}

		vs, err := models.ParseVerificationState(vals[0])
		if err != nil {
			return nil, fmt.Errorf("invalid verification state: %w", err)
		}

		return &vs, nil
	}, (*models.VerificationState)(nil))

	return d
}

// fieldMessages maps a validation tag to its message template. %[1]s is the
// field name, %[2]s the tag parameter. Tags not listed here fall back to
// "<field> is invalid".
var fieldMessages = map[string]string{
	"required":           "%[1]s is required",
	"min":                "%[1]s must be at least %[2]s",
	"max":                "%[1]s must be at most %[2]s",
	"gte":                "%[1]s must be greater than or equal to %[2]s",
	"lte":                "%[1]s must be less than or equal to %[2]s",
	"gtecsfield":         "%[1]s must be greater than or equal to %[2]s",
	"oneof":              "%[1]s must be one of: %[2]s",
	"verification_state": "%[1]s must be one of: unverified, suggested, verified",
	"uuid":               "%[1]s must be a valid UUID",
	"rfc3339":            "%[1]s must be in RFC3339 format (ISO 8601)",
	"no_null_bytes":      "%[1]s must not contain NULL bytes",
}

func formatFieldError(fe validator.FieldError) string {
	tmpl, ok := fieldMessages[fe.Tag()]
	if !ok {
		return fe.Field() + " is invalid"
	}

	return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
}

// ValidateStruct validates a struct and flattens any field errors into one
// message suitable for an RFC 7807 Detail string.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, formatFieldError(fe))
	}

	return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
}

// GetValidationErrorDetails extracts per-field details for the errors array
// of an RFC 7807 response. Returns nil for non-validation errors.
func GetValidationErrorDetails(err error) []response.ErrorDetail {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}

	details := make([]response.ErrorDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, response.ErrorDetail{
			Location: fe.Field(),
			Message:  formatFieldError(fe),
			Value:    fe.Value(),
		})
	}

	return details
}

// RespondValidationError writes a validation error as RFC 7807 Problem Details.
func RespondValidationError(w http.ResponseWriter, err error) {
	problem := response.ProblemDetails{
		Type:   "about:blank",
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: err.Error(),
		Errors: GetValidationErrorDetails(err),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("Failed to encode validation error response", "error", err)
	}
}

// DecodeQueryParams decodes URL query parameters into a struct.
func DecodeQueryParams(r *http.Request, dst any) error {
	if err := decoder.Decode(dst, r.URL.Query()); err != nil {
		return fmt.Errorf("failed to decode query parameters: %w", err)
	}

	return nil
}

// ValidateAndDecodeQueryParams decodes and validates query parameters in one step.
func ValidateAndDecodeQueryParams(r *http.Request, dst any) error {
	if err := DecodeQueryParams(r, dst); err != nil {
		return err
	}

	return ValidateStruct(dst)
}

// validateVerificationState accepts the VerificationState enum directly or
// its string form from JSON and query params.
func validateVerificationState(fl validator.FieldLevel) bool {
	field := fl.Field()

	if field.Type() == reflect.TypeFor[models.VerificationState]() {
		return models.VerificationState(field.String()).IsValid()
	}

	if field.Kind() == reflect.String {
		_, err := models.ParseVerificationState(field.String())

		return err == nil
	}

	return false
}

// validateNoNullBytes rejects strings carrying NUL, which Postgres text
// columns refuse. Nil pointers pass; omitempty decides whether they may.
func validateNoNullBytes(fl validator.FieldLevel) bool {
	field := fl.Field()

	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return true
		}

		field = field.Elem()
	}

	if field.Kind() != reflect.String {
		return true
	}

	return !strings.Contains(field.String(), "\x00")
}
