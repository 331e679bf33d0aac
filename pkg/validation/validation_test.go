package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scheduleRequest struct {
	TeamID         string `json:"team_id" validate:"required,team_id"`
	ConflictPolicy string `json:"conflict_policy" validate:"required,conflict_policy"`
	HorizonDays    int    `json:"horizon_days" validate:"gte=0,lte=365"`
}

type requestWithHook struct {
	TeamID  string `json:"team_id" validate:"required,team_id"`
	Workers int    `json:"workers" validate:"gte=0"`
}

func (r *requestWithHook) Validate() error {
	if r.Workers > 64 {
		return ValidationErrors{{
			Field:   "workers",
			Value:   r.Workers,
			Message: "worker pools above 64 are not supported",
		}}
	}
	return nil
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid request passes", func(t *testing.T) {
		req := scheduleRequest{TeamID: "lions", ConflictPolicy: "reject", HorizonDays: 14}
		assert.NoError(t, ValidateStruct(req))
	})

	t.Run("missing fields are collected", func(t *testing.T) {
		err := ValidateStruct(scheduleRequest{HorizonDays: -1})
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Len(t, verrs, 3)
	})

	t.Run("reports json field names", func(t *testing.T) {
		err := ValidateStruct(scheduleRequest{TeamID: "lions", ConflictPolicy: "reject", HorizonDays: 400})
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		require.Len(t, verrs, 1)
		assert.Equal(t, "horizon_days", verrs[0].Field)
	})

	t.Run("custom Validate hook runs after tags", func(t *testing.T) {
		err := ValidateStruct(&requestWithHook{TeamID: "lions", Workers: 128})
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Contains(t, verrs.Error(), "worker pools")
	})
}

func TestCustomRules(t *testing.T) {
	cases := map[string]struct {
		req scheduleRequest
		ok  bool
	}{
		"hyphenated team": {scheduleRequest{TeamID: "green-bay", ConflictPolicy: "reschedule"}, true},
		"uppercase team":  {scheduleRequest{TeamID: "Lions", ConflictPolicy: "reject"}, false},
		"spaces in team":  {scheduleRequest{TeamID: "de troit", ConflictPolicy: "reject"}, false},
		"unknown policy":  {scheduleRequest{TeamID: "lions", ConflictPolicy: "merge"}, false},
		"force policy":    {scheduleRequest{TeamID: "lions", ConflictPolicy: "force"}, true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateStruct(tc.req)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidationErrorFormatting(t *testing.T) {
	ve := ValidationError{Field: "team_id", Value: "X", Message: "bad"}
	assert.Contains(t, ve.Error(), "team_id")

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
}
