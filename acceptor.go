// Package acceptor runs the NDI output acceptance suite as a cliapp
// lifecycle: prerequisites, test matrix, one worker per case, summary.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/html2ndi/ndi-acceptor/envcheck"
	"github.com/html2ndi/ndi-acceptor/probe"
	"github.com/html2ndi/ndi-acceptor/registry"
	"github.com/html2ndi/ndi-acceptor/reporting"
	"github.com/html2ndi/ndi-acceptor/runner"
	"github.com/html2ndi/ndi-acceptor/supervisor"
	"github.com/html2ndi/ndi-acceptor/types"
	"github.com/html2ndi/ndi-acceptor/verify"
)

var _ cliapp.Lifecycle = &Acceptor{}

// Options override process-level collaborators, mostly for tests.
type Options struct {
	Out        io.Writer // defaults to os.Stdout
	Colors     bool
	LookPath   envcheck.LookPathFunc
	CmdBuilder func(name string, arg ...string) *exec.Cmd
}

// Acceptor runs the suite once and then asks the application to shut down.
type Acceptor struct {
	config     *Config
	version    string
	opts       Options
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	console    *reporting.Console
	result     *types.SuiteResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(config *Config, version string, shutdownCallback func(error), opts Options) (*Acceptor, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating acceptor with config",
		"worker", config.WorkerBinary,
		"suite", config.SuiteFile,
		"captureTool", config.CaptureTool,
		"basePort", config.BasePort)

	reg, err := registry.NewRegistry(registry.Config{
		Log:       config.Log,
		SuiteFile: config.SuiteFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		Log:         config.Log,
		StopTimeout: config.StopTimeout,
		KeepLogs:    config.KeepLogs,
		CmdBuilder:  opts.CmdBuilder,
	})

	return &Acceptor{
		config:           config,
		version:          version,
		opts:             opts,
		registry:         reg,
		supervisor:       sup,
		console:          reporting.NewConsole(opts.Out, config.Log, opts.Colors),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start checks prerequisites and runs every test case. It returns once the
// suite is done: nil when everything passed, a TestFailureError when a case
// failed and an InterruptedError when ctx was cancelled part way.
// Start implements the cliapp.Lifecycle interface.
func (a *Acceptor) Start(ctx context.Context) error {
	a.running.Store(true)
	a.config.Log.Info("Starting ndi-acceptor", "version", a.version)

	report, err := envcheck.Check(envcheck.Config{
		Log:          a.config.Log,
		WorkerBinary: a.config.WorkerBinary,
		CaptureTool:  a.config.CaptureTool,
		LookPath:     a.opts.LookPath,
	})
	if err != nil {
		return NewRuntimeError("prerequisite check", err)
	}

	r, err := a.newRunner(report)
	if err != nil {
		return NewRuntimeError("setup", err)
	}

	cases := a.registry.TestCases()
	if ctx.Err() != nil {
		a.result = &types.SuiteResult{Interrupted: true}
		return NewInterruptedError(0, len(cases))
	}

	result := r.Run(ctx, cases)
	a.result = result
	a.console.PrintSummary(result)
	_, _ = fmt.Fprintln(a.opts.Out, result.String())

	if a.config.SummaryFile != "" {
		if err := reporting.WriteSummaryFile(a.config.SummaryFile, result); err != nil {
			a.config.Log.Error("Failed to write summary file", "path", a.config.SummaryFile, "err", err)
		} else {
			a.config.Log.Info("Wrote summary file", "path", a.config.SummaryFile)
		}
	}

	switch {
	case result.Interrupted:
		a.config.Log.Warn("Test run interrupted")
		return NewInterruptedError(result.Counters.Run, len(cases))
	case result.Status() == types.TestStatusFail:
		a.config.Log.Warn("Test run completed with failures, returning exit code 1")
		return NewTestFailureError(result.Counters.Failed, result.Counters.Run, result.RunID)
	}

	a.config.Log.Info("Tests completed, exiting")
	go func() {
		a.shutdownCallback(nil)
	}()
	return nil
}

func (a *Acceptor) newRunner(report *envcheck.Report) (*runner.Runner, error) {
	var capture runner.CaptureChecker
	tool, err := verify.ToolFor(report.Capture)
	if err != nil {
		return nil, err
	}
	if tool != nil {
		cv, err := verify.NewCaptureVerifier(verify.CaptureConfig{
			Log:  a.config.Log,
			Tool: tool,
			Policy: verify.CapturePolicy{
				Timeout:      a.config.CaptureTimeout,
				Duration:     a.config.CaptureDuration,
				FPSTolerance: a.config.FPSTolerance,
			},
			LookPath: a.opts.LookPath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create capture verifier: %w", err)
		}
		capture = cv
	}

	prober := probe.New(a.config.Log, probe.Policy{
		MaxAttempts: a.config.ReadyAttempts,
		Interval:    a.config.ReadyInterval,
	}, nil)

	r, err := runner.New(runner.Config{
		Log:             a.config.Log,
		Launcher:        runner.NewSupervisorLauncher(a.supervisor),
		Prober:          prober,
		Status:          verify.NewStatusVerifier(a.config.Log, nil),
		Capture:         capture,
		Reporter:        a.console,
		WorkerBinary:    a.config.WorkerBinary,
		WorkerArgs:      a.config.WorkerArgs,
		TargetURL:       a.config.TargetURL,
		NDINamePrefix:   a.config.NDINamePrefix,
		BasePort:        a.config.BasePort,
		ScratchDir:      a.config.ScratchDir,
		LogDir:          a.config.LogDir,
		StabilizeDelay:  a.config.StabilizeDelay,
		CaptureAdvisory: a.config.CaptureAdvisory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}
	return r, nil
}

// Stop stops any worker still running.
// Stop implements the cliapp.Lifecycle interface.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping ndi-acceptor")
	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	a.running.Store(false)
	if err := a.supervisor.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop worker: %w", err)
	}
	a.config.Log.Info("ndi-acceptor stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (a *Acceptor) Stopped() bool {
	return !a.running.Load()
}

// Result returns the last suite result, or nil before Start.
func (a *Acceptor) Result() *types.SuiteResult {
	return a.result
}
