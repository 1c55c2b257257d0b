package runner

import (
	"context"

	"github.com/html2ndi/ndi-acceptor/supervisor"
	"github.com/html2ndi/ndi-acceptor/types"
)

// Worker is a launched worker process as seen by the runner.
type Worker interface {
	PID() int
	StatusURL() string
	Exited() <-chan struct{}
	ExitErr() error
	ReadLog() (string, error)
	Stop() error
}

// Launcher starts workers and stops any left running.
type Launcher interface {
	// Run launches a worker for spec and hands it to fn. The worker is
	// stopped when fn returns or panics. Launch and stop errors are returned
	// joined with fn's error.
	Run(ctx context.Context, spec supervisor.LaunchSpec, fn func(ctx context.Context, w Worker) error) error
	Shutdown() error
}

// ReadinessProber waits for a worker's status interface.
type ReadinessProber interface {
	WaitReady(ctx context.Context, url string) error
}

// StatusChecker verifies the configuration a worker reports about itself.
type StatusChecker interface {
	Verify(ctx context.Context, url string, expected types.TestCase) types.Outcome
}

// CaptureChecker verifies the stream a worker emits.
type CaptureChecker interface {
	Available() bool
	Verify(ctx context.Context, source string, expected types.TestCase) types.Outcome
}

// Reporter receives progress events as the suite runs.
type Reporter interface {
	SuiteStarted(runID string, cases []types.TestCase)
	CaseStarted(seq int, tc types.TestCase)
	WorkerNotReady(seq int, tc types.TestCase, err error, workerLog string)
	CaseFinished(result types.CaseResult)
}

type nopReporter struct{}

func (nopReporter) SuiteStarted(string, []types.TestCase) {}
func (nopReporter) CaseStarted(int, types.TestCase) {}
func (nopReporter) WorkerNotReady(int, types.TestCase, error, string) {}
func (nopReporter) CaseFinished(types.CaseResult) {}
