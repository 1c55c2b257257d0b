package acceptor

import (
	"errors"
	"fmt"

	"github.com/html2ndi/ndi-acceptor/exitcodes"
)

// RuntimeError means the harness could not run the suite at all: bad flags,
// missing prerequisites or an unreadable suite file. Stage names the step
// that broke.
type RuntimeError struct {
	Stage string
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("runtime error during %s: %v", e.Stage, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(stage string, err error) *RuntimeError {
	return &RuntimeError{Stage: stage, Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr)
}

// TestFailureError reports a completed suite in which some cases failed.
type TestFailureError struct {
	Failed int
	Run    int
	RunID  string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %d of %d test cases failed (run %s)", e.Failed, e.Run, e.RunID)
}

func NewTestFailureError(failed, run int, runID string) *TestFailureError {
	return &TestFailureError{Failed: failed, Run: run, RunID: runID}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return errors.As(err, &testErr)
}

// InterruptedError reports that the operator stopped the run. Completed counts
// the cases that finished before the interrupt.
type InterruptedError struct {
	Completed int
	Total     int
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted after %d of %d test cases", e.Completed, e.Total)
}

func NewInterruptedError(completed, total int) *InterruptedError {
	return &InterruptedError{Completed: completed, Total: total}
}

// IsInterruptedError checks if the error is or wraps an InterruptedError
func IsInterruptedError(err error) bool {
	var intErr *InterruptedError
	return errors.As(err, &intErr)
}

// ExitCode maps an error returned by Start to the process exit code.
// Interruption wins over everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsInterruptedError(err):
		return exitcodes.Interrupted
	default:
		return exitcodes.TestFailure
	}
}
