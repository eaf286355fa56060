/*
errors.go - Sentinel errors for the occurrence package
*/
package occurrence

import "errors"

var (
	// ErrTrackerNotFound is returned by stores when no tracker row exists
	// for the requested key.
	ErrTrackerNotFound = errors.New("occurrence tracker not found")

	// ErrInvalidResetPeriod is returned when a policy carries an unknown
	// reset cadence.
	ErrInvalidResetPeriod = errors.New("invalid reset period")
)
