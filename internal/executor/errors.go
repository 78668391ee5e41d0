package executor

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when Execute is called while another run is in flight.
var ErrBusy = errors.New("executor: a run is already in flight")

// ExecutionError describes a run that could not be spawned or exited non-zero.
// It is reported and logged; it never stops the scheduling loop.
type ExecutionError struct {
	Op       string // spawn, exit or wait
	ExitCode int
	Reason   string
	Err      error
}

func (e *ExecutionError) Error() string {
	switch e.Op {
	case "exit":
		return fmt.Sprintf("execution: exited with code %d", e.ExitCode)
	case "spawn":
		return fmt.Sprintf("execution: %s: %v", e.Reason, e.Err)
	default:
		return fmt.Sprintf("execution: %s: %v", e.Op, e.Err)
	}
}

func (e *ExecutionError) Unwrap() error { return e.Err }
