package services

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the engines and the job pipelines.
//
// ErrProviderUnavailable: every provider in the embedding/LLM fallback chain
// was exhausted. Callers get this instead of a silent zero vector.
//
// ErrValidation: a malformed request or job payload. Jobs failing validation
// go straight to the dead-letter state, never retried.
//
// ErrConfiguration: invalid weights/thresholds detected at startup.
// ErrIntakePaused: job intake is halted after an emergency stop. Submissions
// are rejected until Resume.
var (
	ErrProviderUnavailable = errors.New("all providers unavailable")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrIntakePaused        = errors.New("job intake paused")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrValidationf is the exported form for callers outside this package.
func ErrValidationf(format string, args ...any) error {
	return validationErrorf(format, args...)
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
