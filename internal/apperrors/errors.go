// Package apperrors defines the error kinds surfaced by the batch jobs and the
// dashboard. Each kind wraps its cause and is matched with errors.As.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNoDistricts  = errors.New("no districts loaded")
	ErrInvalidInput = errors.New("invalid input")
)

// DataError reports malformed or missing boundary input. A load that hits one
// aborts before anything is written.
type DataError struct {
	Source string
	Reason string
	Err    error
}

func NewDataError(source, reason string, err error) error {
	return &DataError{Source: source, Reason: reason, Err: err}
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("data error in %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

// GenerationError reports a district whose geometry could not be sampled.
type GenerationError struct {
	DistrictID string
	Attempts   int
	Err        error
}

func NewGenerationError(districtID string, attempts int, err error) error {
	return &GenerationError{DistrictID: districtID, Attempts: attempts, Err: err}
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for district %s after %d attempts: %v", e.DistrictID, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TrainingError reports a district with too few records to fit. The trainer
// assigns the neutral score instead of returning it.
type TrainingError struct {
	DistrictID string
	Records    int
	Required   int
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("insufficient data for district %s: %d records, need %d", e.DistrictID, e.Records, e.Required)
}

// ConnectionError reports that the store could not be reached.
type ConnectionError struct {
	Target string
	Err    error
}

func NewConnectionError(target string, err error) error {
	return &ConnectionError{Target: target, Err: err}
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExitCode maps an error kind to a process exit status for the batch CLIs.
func ExitCode(err error) int {
	var (
		dataErr *DataError
		connErr *ConnectionError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &dataErr), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoDistricts):
		return 2
	case errors.As(err, &connErr):
		return 3
	default:
		return 1
	}
}
