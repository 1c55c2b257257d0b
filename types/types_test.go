package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCaseValidate(t *testing.T) {
	require.NoError(t, TestCase{Name: "a", Width: 1, Height: 1, FPS: 1}.Validate())

	tests := []struct {
		name string
		tc   TestCase
	}{
		{"no name", TestCase{Width: 1, Height: 1, FPS: 1}},
		{"zero width", TestCase{Name: "a", Height: 1, FPS: 1}},
		{"negative height", TestCase{Name: "a", Width: 1, Height: -1, FPS: 1}},
		{"zero fps", TestCase{Name: "a", Width: 1, Height: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.tc.Validate())
		})
	}
}

func TestTestCaseString(t *testing.T) {
	assert.Equal(t, "1920x1080@60p", TestCase{Width: 1920, Height: 1080, FPS: 60, Progressive: true}.String())
	assert.Equal(t, "1920x1080@30i", TestCase{Width: 1920, Height: 1080, FPS: 30}.String())
	assert.Equal(t, "interlaced", TestCase{}.ScanMode())
	assert.Equal(t, "progressive", TestCase{Progressive: true}.ScanMode())
}

func TestOutcome(t *testing.T) {
	o := NewOutcome("status")
	assert.True(t, o.Passed)

	o.Warn("note %d", 1)
	assert.True(t, o.Passed)
	assert.Equal(t, []string{"note 1"}, o.Warnings)

	o.Mismatch("width", 1920, 1280)
	assert.False(t, o.Passed)
	assert.Equal(t, []string{"width mismatch: expected 1920, got 1280"}, o.Mismatches)

	soft := NewOutcome("capture")
	soft.SoftPass("no %s", "resolution")
	assert.True(t, soft.Passed)
	assert.True(t, soft.Soft)
	assert.Equal(t, []string{"no resolution"}, soft.Warnings)

	failed := NewOutcome("status")
	failed.Fail(errors.New("connection refused"))
	assert.False(t, failed.Passed)
	assert.EqualError(t, failed.Err, "connection refused")
}

func TestCaseResultFailures(t *testing.T) {
	status := NewOutcome("status")
	status.Mismatch("progressive", false, true)
	capture := NewOutcome("capture")
	capture.SoftPass("timed out")
	broken := NewOutcome("capture")
	broken.Fail(errors.New("eof"))

	r := CaseResult{Outcomes: []Outcome{status, capture, broken}}
	assert.Equal(t, []string{
		"status: progressive mismatch: expected false, got true",
		"capture: eof",
	}, r.Failures())

	r = CaseResult{Error: errors.New("worker did not become ready")}
	assert.Equal(t, []string{"worker did not become ready"}, r.Failures())
}

func TestCounters(t *testing.T) {
	var c Counters
	assert.True(t, c.Consistent())
	for _, passed := range []bool{true, false, true, true, false} {
		c.Record(passed)
		assert.True(t, c.Consistent())
	}
	assert.Equal(t, Counters{Run: 5, Passed: 3, Failed: 2}, c)

	assert.False(t, Counters{Run: 2, Passed: 1}.Consistent())
}

func TestSuiteResultStatus(t *testing.T) {
	assert.Equal(t, TestStatusPass, (&SuiteResult{Counters: Counters{Run: 1, Passed: 1}}).Status())
	assert.Equal(t, TestStatusFail, (&SuiteResult{Counters: Counters{Run: 1, Failed: 1}}).Status())
	assert.Equal(t, TestStatusSkip, (&SuiteResult{Interrupted: true}).Status())
	assert.Equal(t, TestStatusFail, (&SuiteResult{Interrupted: true, Counters: Counters{Run: 1, Failed: 1}}).Status())

	s := (&SuiteResult{RunID: "r", Counters: Counters{Run: 2, Passed: 1, Failed: 1}, Duration: 1500 * time.Millisecond}).String()
	assert.Equal(t, "RunID: r, Status: fail, Run: 2, Passed: 1, Failed: 1, Duration: 1.5s", s)
}
