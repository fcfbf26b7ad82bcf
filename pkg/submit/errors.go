package submit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDeclined is returned when the user declines to submit without a schedule
// table. Nothing was sent.
var ErrDeclined = errors.New("submission cancelled: no schedule table is configured")

// ErrMissingIdentifier is returned when the project record was created but the
// response carried neither record_id nor id.
var ErrMissingIdentifier = errors.New("project record was created but the response has no record id")

// ConfigurationError lists the connection settings that must be filled in
// before anything can be submitted.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "lark connection is not configured: missing " + strings.Join(e.Missing, ", ")
}

// StepError wraps the failure of one submission step. Day is 1-based and only
// set while creating schedule records.
type StepError struct {
	State State
	Day   int
	Err   error
}

func (e *StepError) Error() string {
	switch e.State {
	case StateAuthenticating:
		return fmt.Sprintf("authenticate: %v", e.Err)
	case StateCreatingProject:
		return fmt.Sprintf("create project: %v", e.Err)
	case StateCreatingSchedule:
		return fmt.Sprintf("day %d: %v", e.Day, e.Err)
	}
	return e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}
