package types

import "fmt"

// Outcome is the result of one verification channel for one test case.
// A Soft outcome is inconclusive: it passes, but carries warnings explaining
// why nothing could be assessed.
type Outcome struct {
	Check      string
	Passed     bool
	Soft       bool
	Mismatches []string
	Warnings   []string
	Err        error
}

// NewOutcome returns a passing outcome for the named check.
func NewOutcome(check string) Outcome {
	return Outcome{Check: check, Passed: true}
}

// Mismatch records a hard failure for a single field.
func (o *Outcome) Mismatch(field string, expected, actual any) {
	o.Passed = false
	o.Mismatches = append(o.Mismatches, fmt.Sprintf("%s mismatch: expected %v, got %v", field, expected, actual))
}

// Warn records a warning without changing the verdict.
func (o *Outcome) Warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// Fail marks the outcome as failed because of err.
func (o *Outcome) Fail(err error) {
	o.Passed = false
	o.Err = err
}

// SoftPass marks the outcome as inconclusive with the given warning.
func (o *Outcome) SoftPass(format string, args ...any) {
	o.Passed = true
	o.Soft = true
	o.Warn(format, args...)
}
