// Package season defines domain-specific errors
package season

import "errors"

var (
	ErrInvalidSnapshot = errors.New("invalid season snapshot")
	ErrTerminalPhase   = errors.New("season is already in its final phase")
)
