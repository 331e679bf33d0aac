package dto

import "errors"

// Simulation errors
var (
	ErrInvalidFailurePolicy = errors.New("invalid failure policy")
	ErrNotCurrentDay        = errors.New("simulate-day date must equal the current day cursor")
	ErrTargetInPast         = errors.New("advance target must be after the current day")
	ErrDayInProgress        = errors.New("a day simulation is already in progress")
)
