package types

import (
	"errors"
	"fmt"
	"time"
)

// TestStatus represents the possible states of a test case
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// TestCase is one worker configuration to validate.
type TestCase struct {
	Name        string `yaml:"name" toml:"name" json:"name"`
	Width       int    `yaml:"width" toml:"width" json:"width"`
	Height      int    `yaml:"height" toml:"height" json:"height"`
	FPS         int    `yaml:"fps" toml:"fps" json:"fps"`
	Progressive bool   `yaml:"progressive" toml:"progressive" json:"progressive"`
}

// Validate checks that the test case describes a launchable configuration.
func (tc TestCase) Validate() error {
	if tc.Name == "" {
		return errors.New("test case name is required")
	}
	if tc.Width <= 0 {
		return fmt.Errorf("test case %q: width must be positive, got %d", tc.Name, tc.Width)
	}
	if tc.Height <= 0 {
		return fmt.Errorf("test case %q: height must be positive, got %d", tc.Name, tc.Height)
	}
	if tc.FPS <= 0 {
		return fmt.Errorf("test case %q: fps must be positive, got %d", tc.Name, tc.FPS)
	}
	return nil
}

// ScanMode returns "progressive" or "interlaced".
func (tc TestCase) ScanMode() string {
	if tc.Progressive {
		return "progressive"
	}
	return "interlaced"
}

// String renders the case in broadcast shorthand, e.g. 1920x1080@60p.
func (tc TestCase) String() string {
	scan := "p"
	if !tc.Progressive {
		scan = "i"
	}
	return fmt.Sprintf("%dx%d@%d%s", tc.Width, tc.Height, tc.FPS, scan)
}

// CaseResult captures the outcome of a single test case
type CaseResult struct {
	Seq      int
	Case     TestCase
	Status   TestStatus
	Outcomes []Outcome
	Error    error // Set when the case failed before verification
	Duration time.Duration
}

// Failures returns every hard mismatch across all outcomes, prefixed by check name.
func (r CaseResult) Failures() []string {
	var out []string
	if r.Error != nil {
		out = append(out, r.Error.Error())
	}
	for _, o := range r.Outcomes {
		if o.Passed {
			continue
		}
		for _, m := range o.Mismatches {
			out = append(out, fmt.Sprintf("%s: %s", o.Check, m))
		}
		if o.Err != nil {
			out = append(out, fmt.Sprintf("%s: %v", o.Check, o.Err))
		}
	}
	return out
}
