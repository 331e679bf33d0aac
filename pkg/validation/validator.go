// Package validation provides struct validation for engine configuration
// and requests, backed by go-playground/validator with scheduling-specific
// rules registered on top.
// PRINCIPLES:
// - ISP: Validator is a single-method interface
// - DRY: One validator instance shared by CLI and engine wiring
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator is implemented by types carrying their own validation logic.
type Validator interface {
	Validate() error
}

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates every failed field of one struct.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate is the shared validator instance with the engine's custom tags
// registered.
var Validate *validator.Validate

var teamIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

func init() {
	Validate = validator.New()

	Validate.RegisterValidation("team_id", validateTeamID)
	Validate.RegisterValidation("conflict_policy", validateConflictPolicy)
	Validate.RegisterValidation("failure_policy", validateFailurePolicy)
	Validate.RegisterValidation("season_phase", validateSeasonPhase)

	// Report json tag names instead of Go field names.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateStruct validates tags first, then the type's own Validate method
// when it implements Validator.
func ValidateStruct(s any) error {
	if err := Validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	if v, ok := s.(Validator); ok {
		return v.Validate()
	}
	return nil
}

func formatValidationErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var out ValidationErrors
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Value:   fe.Value(),
			Message: errorMessage(fe),
		})
	}
	return out
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min", "gte":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "team_id":
		return "must be a valid team identifier (lowercase alphanumeric, underscore, hyphen)"
	case "conflict_policy":
		return "must be one of: reject, reschedule, force"
	case "failure_policy":
		return "must be one of: continue, abort_day"
	case "season_phase":
		return "must be one of: preseason, regular_season, playoffs, offseason"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

func validateTeamID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return id != "" && len(id) <= 64 && teamIDPattern.MatchString(id)
}

func validateConflictPolicy(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "reject", "reschedule", "force":
		return true
	}
	return false
}

func validateFailurePolicy(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "continue", "abort_day":
		return true
	}
	return false
}

func validateSeasonPhase(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "preseason", "regular_season", "playoffs", "offseason":
		return true
	}
	return false
}
