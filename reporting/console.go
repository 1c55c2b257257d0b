// Package reporting prints suite progress and results, and decides the
// process exit code.
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/html2ndi/ndi-acceptor/exitcodes"
	"github.com/html2ndi/ndi-acceptor/types"
)

// Console writes human readable progress to a terminal.
type Console struct {
	out    io.Writer
	log    log.Logger
	colors bool

	mu sync.Mutex
}

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer, logger log.Logger, colors bool) *Console {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Console{out: out, log: logger, colors: colors}
}

func (c *Console) paint(colors text.Colors, s string) string {
	if !c.colors {
		return s
	}
	return colors.Sprint(s)
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) SuiteStarted(runID string, cases []types.TestCase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("%s\n", c.paint(text.Colors{text.Bold}, fmt.Sprintf("NDI output acceptance (%d test cases, run %s)", len(cases), runID)))
}

func (c *Console) CaseStarted(seq int, tc types.TestCase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	banner := fmt.Sprintf("Test %d: %s (%s %s)", seq, tc.Name, tc.String(), tc.ScanMode())
	c.printf("\n%s\n%s\n", c.paint(text.Colors{text.FgCyan, text.Bold}, banner), strings.Repeat("-", len(banner)))
}

func (c *Console) WorkerNotReady(seq int, tc types.TestCase, err error, workerLog string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("  %s %v\n", c.paint(text.Colors{text.FgRed}, "worker not ready:"), err)
	workerLog = strings.TrimRight(workerLog, "\n")
	if workerLog == "" {
		c.printf("  (worker log is empty)\n")
		return
	}
	c.printf("  --- worker log (test %d) ---\n", seq)
	for _, line := range strings.Split(workerLog, "\n") {
		c.printf("  | %s\n", line)
	}
	c.printf("  --- end of worker log ---\n")
}

func (c *Console) CaseFinished(result types.CaseResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if result.Error != nil && len(result.Outcomes) == 0 {
		c.printf("  %s %v\n", c.paint(text.Colors{text.FgRed}, "error:"), result.Error)
	}
	for _, o := range result.Outcomes {
		switch {
		case o.Soft:
			c.printf("  %-8s %s\n", o.Check, c.paint(text.Colors{text.FgYellow}, "inconclusive"))
		case o.Passed:
			c.printf("  %-8s %s\n", o.Check, c.paint(text.Colors{text.FgGreen}, "ok"))
		default:
			c.printf("  %-8s %s\n", o.Check, c.paint(text.Colors{text.FgRed}, "FAILED"))
		}
		for _, m := range o.Mismatches {
			c.printf("    %s\n", c.paint(text.Colors{text.FgRed}, m))
		}
		if o.Err != nil {
			c.printf("    %s\n", c.paint(text.Colors{text.FgRed}, o.Err.Error()))
		}
		for _, w := range o.Warnings {
			c.printf("    %s %s\n", c.paint(text.Colors{text.FgYellow}, "warning:"), w)
		}
	}
	c.printf("  %s (%s)\n", c.verdict(result.Status), formatDuration(result.Duration))
}

func (c *Console) verdict(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return c.paint(text.Colors{text.FgGreen, text.Bold}, "PASSED")
	case types.TestStatusSkip:
		return c.paint(text.Colors{text.FgYellow, text.Bold}, "SKIPPED")
	default:
		return c.paint(text.Colors{text.FgRed, text.Bold}, "FAILED")
	}
}

// PrintSummary renders the per-case table and the run/passed/failed totals.
func (c *Console) PrintSummary(result *types.SuiteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetTitle(fmt.Sprintf("NDI Output Test Results (%s)", formatDuration(result.Duration)))
	t.AppendHeader(table.Row{"#", "Test", "Config", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, cr := range result.Cases {
		t.AppendRow(table.Row{
			cr.Seq,
			cr.Case.Name,
			cr.Case.String(),
			formatDuration(cr.Duration),
			getResultString(cr.Status),
			strings.Join(cr.Failures(), "; "),
		})
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("run %d", result.Counters.Run),
		fmt.Sprintf("passed %d", result.Counters.Passed),
		fmt.Sprintf("failed %d", result.Counters.Failed),
		getResultString(result.Status()),
		"",
	})

	switch {
	case !c.colors:
		t.SetStyle(table.StyleLight)
	case result.Status() == types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case result.Status() == types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	c.printf("\n")
	t.Render()
	if result.Interrupted {
		c.printf("%s\n", c.paint(text.Colors{text.FgYellow}, "Run interrupted, remaining test cases were not run"))
	}
	c.log.Info("Test run completed", "run_id", result.RunID, "status", result.Status(),
		"run", result.Counters.Run, "passed", result.Counters.Passed, "failed", result.Counters.Failed)
}

// ExitCode maps a suite result to the process exit status.
func ExitCode(result *types.SuiteResult) int {
	switch {
	case result == nil:
		return exitcodes.TestFailure
	case result.Interrupted:
		return exitcodes.Interrupted
	case result.Counters.Failed > 0:
		return exitcodes.TestFailure
	default:
		return exitcodes.Success
	}
}

func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
