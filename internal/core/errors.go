package core

import "errors"

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrEmptyImage      = errors.New("image is empty")
	ErrEmptyPatientID  = errors.New("patient id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoMedications   = errors.New("no medications found for this patient")
)

// ValidationError marks input rejected before any backend call.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid input: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error) error { return &ValidationError{Err: err} }

// IsValidationError reports whether err was caused by invalid input.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
