package types

import (
	"fmt"
	"time"
)

// Counters are the suite-level tallies. Run always equals Passed + Failed.
type Counters struct {
	Run    int `json:"run"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Record tallies one completed test case.
func (c *Counters) Record(passed bool) {
	c.Run++
	if passed {
		c.Passed++
	} else {
		c.Failed++
	}
}

// Consistent reports whether Run == Passed + Failed.
func (c Counters) Consistent() bool {
	return c.Run == c.Passed+c.Failed
}

// SuiteResult is returned by the runner once the suite completes or is interrupted.
type SuiteResult struct {
	RunID       string
	Cases       []CaseResult
	Counters    Counters
	Duration    time.Duration
	Interrupted bool
}

// Status returns the overall suite status
func (r *SuiteResult) Status() TestStatus {
	if r.Counters.Failed > 0 {
		return TestStatusFail
	}
	if r.Interrupted {
		return TestStatusSkip
	}
	return TestStatusPass
}

// String returns a one line summary of the run
func (r *SuiteResult) String() string {
	return fmt.Sprintf("RunID: %s, Status: %s, Run: %d, Passed: %d, Failed: %d, Duration: %s",
		r.RunID, r.Status(), r.Counters.Run, r.Counters.Passed, r.Counters.Failed, r.Duration.Round(time.Millisecond))
}
