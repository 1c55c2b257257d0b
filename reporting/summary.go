package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/html2ndi/ndi-acceptor/types"
)

// Summary is the machine readable form of a suite result.
type Summary struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"`
	Interrupted bool           `json:"interrupted"`
	DurationMS  int64          `json:"duration_ms"`
	Counters    types.Counters `json:"counters"`
	ExitCode    int            `json:"exit_code"`
	Cases       []CaseSummary  `json:"cases"`
}

type CaseSummary struct {
	Seq        int              `json:"seq"`
	Name       string           `json:"name"`
	Config     types.TestCase   `json:"config"`
	Status     string           `json:"status"`
	DurationMS int64            `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
	Outcomes   []OutcomeSummary `json:"outcomes,omitempty"`
}

type OutcomeSummary struct {
	Check      string   `json:"check"`
	Passed     bool     `json:"passed"`
	Soft       bool     `json:"soft,omitempty"`
	Mismatches []string `json:"mismatches,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// NewSummary converts a suite result.
func NewSummary(result *types.SuiteResult) Summary {
	s := Summary{
		RunID:       result.RunID,
		Status:      string(result.Status()),
		Interrupted: result.Interrupted,
		DurationMS:  result.Duration.Milliseconds(),
		Counters:    result.Counters,
		ExitCode:    ExitCode(result),
		Cases:       make([]CaseSummary, 0, len(result.Cases)),
	}
	for _, cr := range result.Cases {
		cs := CaseSummary{
			Seq:        cr.Seq,
			Name:       cr.Case.Name,
			Config:     cr.Case,
			Status:     string(cr.Status),
			DurationMS: cr.Duration.Milliseconds(),
		}
		if cr.Error != nil {
			cs.Error = cr.Error.Error()
		}
		for _, o := range cr.Outcomes {
			out := OutcomeSummary{
				Check:      o.Check,
				Passed:     o.Passed,
				Soft:       o.Soft,
				Mismatches: o.Mismatches,
				Warnings:   o.Warnings,
			}
			if o.Err != nil {
				out.Error = o.Err.Error()
			}
			cs.Outcomes = append(cs.Outcomes, out)
		}
		s.Cases = append(s.Cases, cs)
	}
	return s
}

// WriteSummaryFile writes the result as indented JSON to path.
func WriteSummaryFile(path string, result *types.SuiteResult) error {
	data, err := json.MarshalIndent(NewSummary(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create summary directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
