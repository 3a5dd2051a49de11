package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the scoring pipeline, repositories and services.
// Stores wrap infrastructure failures in ErrRepositoryUnavailable; ErrAlertConflict
// is consumed by the alert engine and never returned to callers.
var (
	ErrInvalidObservation    = errors.New("invalid observation")
	ErrPatientNotActive      = errors.New("patient not active")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyResolved       = errors.New("alert already resolved")
	ErrAlertConflict         = errors.New("alert conflict")
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidRequest        = errors.New("invalid request")
)

// InvalidObservationError names the offending vital-sign field.
type InvalidObservationError struct {
	Field  string
	Reason string
}

func (e *InvalidObservationError) Error() string {
	return fmt.Sprintf("invalid observation: %s %s", e.Field, e.Reason)
}

func (e *InvalidObservationError) Is(target error) bool {
	return target == ErrInvalidObservation
}
