package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a malformed record field.
type ValidationError struct {
	Record string // "crop" or "harvest"
	ID     int64
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: field %s %q: %s", e.Record, e.ID, e.Field, e.Value, e.Reason)
}

// ChronologyError reports a harvest dated before its crop was planted.
type ChronologyError struct {
	HarvestID    int64
	CropID       int64
	HarvestDate  time.Time
	PlantingDate time.Time
}

func (e *ChronologyError) Error() string {
	return fmt.Sprintf("harvest %d dated %s precedes planting of crop %d on %s",
		e.HarvestID, e.HarvestDate.Format(time.DateOnly), e.CropID, e.PlantingDate.Format(time.DateOnly))
}

type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

type EmptyRangeError struct {
	FromYear int
	ToYear   int
}

func (e *EmptyRangeError) Error() string {
	return fmt.Sprintf("empty year range: from %d is after to %d", e.FromYear, e.ToYear)
}

// DivisionError is returned when a non-positive area reaches the forecast math.
type DivisionError struct {
	Area float64
}

func (e *DivisionError) Error() string {
	return fmt.Sprintf("cannot compute yield per area for area %v", e.Area)
}

// UnknownCropError means the baseline table has no entry for a crop. The
// forecast engine recovers from it with the generic baseline.
type UnknownCropError struct {
	Crop string
}

func (e *UnknownCropError) Error() string {
	return fmt.Sprintf("no baseline for crop %q", e.Crop)
}

type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded budget of %s", e.Op, e.Budget)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Error classes shown to users.
const (
	ClassFixInput      = "fix_input"
	ClassNothingToShow = "nothing_to_show"
	ClassBestEffort    = "best_effort"
	ClassUnavailable   = "unavailable"
	ClassInternal      = "internal"
)

// Classify maps an error to the class of message a user should see.
func Classify(err error) string {
	var (
		ve  *ValidationError
		ce  *ChronologyError
		ipe *InvalidParameterError
		ere *EmptyRangeError
		de  *DivisionError
		uce *UnknownCropError
		te  *TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve), errors.As(err, &ce), errors.As(err, &ipe), errors.As(err, &de):
		return ClassFixInput
	case errors.As(err, &ere):
		return ClassNothingToShow
	case errors.As(err, &uce):
		return ClassBestEffort
	case errors.As(err, &te):
		return ClassUnavailable
	default:
		return ClassInternal
	}
}
