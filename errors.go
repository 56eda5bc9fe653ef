package systest

import (
	"errors"
	"fmt"

	"github.com/corewright/systest/scheduler"
	"github.com/corewright/systest/trace"
)

// ErrControlledTerminate is error kind 1 (§7): the controlled-terminate
// signal raised at every scheduling point after an iteration detaches.
// It is an alias of scheduler.ErrExecutionCanceled — every user stack
// frame above the scheduler sees the same sentinel, and is expected to
// let it propagate; it never surfaces as a reported bug.
var ErrControlledTerminate = scheduler.ErrExecutionCanceled

// UncontrolledTaskError is error kind 2 (§7): fatal and immediate,
// raised when a scheduling point is reached by an operation the core
// never registered. Wraps scheduler.ErrUncontrolledTask so
// errors.Is(err, scheduler.ErrUncontrolledTask) still matches.
type UncontrolledTaskError struct {
	Cause       error
	OperationID uint64
}

func (e *UncontrolledTaskError) Error() string {
	return fmt.Sprintf("systest: uncontrolled task (operation %d): %v", e.OperationID, e.Cause)
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *UncontrolledTaskError) Unwrap() error { return e.Cause }

// AssertionFailureError is error kind 3 (§7): a user assert, monitor
// assert, deadlock, or unhandled user exception. It carries the bug
// report and the schedule trace captured for replay.
type AssertionFailureError struct {
	// Message is the human-readable bug report (§7 "human-readable error
	// line").
	Message string
	// Strategy and Seed describe the exploration that found the bug
	// (§7 "description of the strategy and seed").
	Strategy string
	Seed     int64
	// Trace is the captured schedule trace for replay (§7 "schedule-trace
	// file for replay").
	Trace *trace.Trace
	// Cause, if set, is the underlying user exception or Go panic value
	// that triggered this assertion failure.
	Cause error
}

func (e *AssertionFailureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("systest: assertion failure (strategy=%s seed=%d): %s: %v", e.Strategy, e.Seed, e.Message, e.Cause)
	}
	return fmt.Sprintf("systest: assertion failure (strategy=%s seed=%d): %s", e.Strategy, e.Seed, e.Message)
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *AssertionFailureError) Unwrap() error { return e.Cause }

// LivenessFailureError is error kind 4 (§7): a monitor's hot-state
// temperature exceeded the configured threshold. Runs the same pipeline
// as AssertionFailureError but is reported and matched separately.
type LivenessFailureError struct {
	Message     string
	Strategy    string
	Seed        int64
	Trace       *trace.Trace
	MonitorType string
	Temperature int
}

func (e *LivenessFailureError) Error() string {
	return fmt.Sprintf("systest: liveness failure (strategy=%s seed=%d monitor=%s temperature=%d): %s",
		e.Strategy, e.Seed, e.MonitorType, e.Temperature, e.Message)
}

// Is reports true for any other *LivenessFailureError, so
// errors.Is(err, &LivenessFailureError{}) can be used as a type probe
// without comparing field values.
func (e *LivenessFailureError) Is(target error) bool {
	var t *LivenessFailureError
	return errors.As(target, &t)
}

// WrapError wraps an error with a message and cause chain, matching the
// teacher's convenience helper verbatim.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
