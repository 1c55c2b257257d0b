// Package runner sequences test cases through launch, readiness,
// verification and teardown, and tallies the results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/html2ndi/ndi-acceptor/metrics"
	"github.com/html2ndi/ndi-acceptor/supervisor"
	"github.com/html2ndi/ndi-acceptor/types"
	"github.com/html2ndi/ndi-acceptor/verify"
)

const (
	DefaultNDINamePrefix  = "HTML2NDI-Test"
	DefaultBasePort       = 8080
	DefaultStabilizeDelay = 3 * time.Second
	DefaultTargetURL      = "about:blank"
)

// Config holds configuration for creating a new runner
type Config struct {
	Log      log.Logger
	Launcher Launcher
	Prober   ReadinessProber
	Status   StatusChecker
	Capture  CaptureChecker // nil disables capture verification
	Reporter Reporter

	WorkerBinary  string
	WorkerArgs    []string // appended to every worker command line
	TargetURL     string
	NDINamePrefix string
	BasePort      int
	ScratchDir    string
	LogDir        string

	StabilizeDelay  time.Duration // pause between readiness and verification
	CaptureAdvisory bool          // capture mismatches are reported but do not fail a case
	PID             int           // embedded in scratch and log names, defaults to os.Getpid()
}

// Runner runs a suite of test cases one worker at a time.
type Runner struct {
	cfg    Config
	log    log.Logger
	tracer trace.Tracer
}

// New creates a runner, validating and defaulting cfg.
func New(cfg Config) (*Runner, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if cfg.Prober == nil {
		return nil, errors.New("readiness prober is required")
	}
	if cfg.Status == nil {
		return nil, errors.New("status checker is required")
	}
	if cfg.WorkerBinary == "" {
		return nil, errors.New("worker binary is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = nopReporter{}
	}
	if cfg.TargetURL == "" {
		cfg.TargetURL = DefaultTargetURL
	}
	if cfg.NDINamePrefix == "" {
		cfg.NDINamePrefix = DefaultNDINamePrefix
	}
	if cfg.BasePort <= 0 {
		cfg.BasePort = DefaultBasePort
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.LogDir == "" {
		cfg.LogDir = cfg.ScratchDir
	}
	if cfg.StabilizeDelay < 0 {
		cfg.StabilizeDelay = 0
	}
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}

	cfg.Log.Debug("New runner", "worker", cfg.WorkerBinary, "base_port", cfg.BasePort,
		"scratch_dir", cfg.ScratchDir, "log_dir", cfg.LogDir, "capture", cfg.Capture != nil)

	return &Runner{
		cfg:    cfg,
		log:    cfg.Log,
		tracer: otel.Tracer("test runner"),
	}, nil
}

// LaunchSpec derives the worker launch parameters for the seq-th case
// (1-based). Stream name, port and paths all depend on seq so consecutive
// cases never collide.
func (r *Runner) LaunchSpec(seq int, tc types.TestCase) supervisor.LaunchSpec {
	return supervisor.LaunchSpec{
		Binary:    r.cfg.WorkerBinary,
		URL:       r.cfg.TargetURL,
		Case:      tc,
		NDIName:   fmt.Sprintf("%s-%d", r.cfg.NDINamePrefix, seq),
		HTTPPort:  r.cfg.BasePort + seq,
		CachePath: filepath.Join(r.cfg.ScratchDir, fmt.Sprintf("ndi-acceptor-cache-%d-%d", r.cfg.PID, seq)),
		LogPath:   filepath.Join(r.cfg.LogDir, fmt.Sprintf("ndi-acceptor-worker-%d-%d.log", r.cfg.PID, seq)),
		ExtraArgs: r.cfg.WorkerArgs,
	}
}

// Run executes cases in order and returns the tallies. When ctx is cancelled
// the current case is abandoned uncounted, the result is marked interrupted
// and no further cases start. Any worker still running is stopped before Run
// returns.
func (r *Runner) Run(ctx context.Context, cases []types.TestCase) *types.SuiteResult {
	start := time.Now()
	result := &types.SuiteResult{RunID: uuid.New().String()}
	defer func() {
		if err := r.cfg.Launcher.Shutdown(); err != nil {
			r.log.Error("Failed to stop remaining worker", "err", err)
		}
	}()

	ctx, span := r.tracer.Start(ctx, "suite")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", result.RunID), attribute.Int("cases", len(cases)))

	r.log.Info("Running suite", "run_id", result.RunID, "cases", len(cases))
	r.cfg.Reporter.SuiteStarted(result.RunID, cases)

	counters := types.Counters{}
	for i, tc := range cases {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		seq := i + 1
		cr := r.runCase(ctx, seq, tc)
		if ctx.Err() != nil {
			cr.Status = types.TestStatusSkip
			result.Cases = append(result.Cases, cr)
			result.Interrupted = true
			r.log.Warn("Interrupted, test case not counted", "seq", seq, "case", tc.Name)
			break
		}
		counters.Record(cr.Status == types.TestStatusPass)
		result.Cases = append(result.Cases, cr)
		metrics.RecordTestCase(result.RunID, tc.Name, cr.Status)
		r.cfg.Reporter.CaseFinished(cr)
	}

	result.Counters = counters
	result.Duration = time.Since(start)
	metrics.RecordSuite(result.RunID, result.Counters, result.Duration)
	if result.Counters.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d test cases failed", result.Counters.Failed))
	}
	r.log.Info("Suite finished", "result", result.String(), "interrupted", result.Interrupted)
	return result
}

func (r *Runner) runCase(ctx context.Context, seq int, tc types.TestCase) types.CaseResult {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", tc.Name))
	defer span.End()
	span.SetAttributes(
		attribute.Int("seq", seq),
		attribute.String("config", tc.String()),
	)

	start := time.Now()
	result := types.CaseResult{Seq: seq, Case: tc}
	r.cfg.Reporter.CaseStarted(seq, tc)

	spec := r.LaunchSpec(seq, tc)
	launched := false
	err := r.cfg.Launcher.Run(ctx, spec, func(ctx context.Context, w Worker) error {
		launched = true
		result.Outcomes, result.Error = r.exercise(ctx, seq, tc, spec, w)
		return nil
	})
	switch {
	case !launched:
		result.Status = types.TestStatusFail
		result.Error = fmt.Errorf("failed to start worker: %w", err)
	default:
		if err != nil {
			r.log.Warn("Worker teardown incomplete", "seq", seq, "err", err)
		}
		result.Status = r.verdict(result)
	}
	result.Duration = time.Since(start)

	span.SetAttributes(attribute.String("status", string(result.Status)))
	if result.Status == types.TestStatusFail {
		span.SetStatus(codes.Error, "test case failed")
	}
	return result
}

// exercise runs readiness and verification against a launched worker. A
// returned error means verification never happened.
func (r *Runner) exercise(ctx context.Context, seq int, tc types.TestCase, spec supervisor.LaunchSpec, w Worker) ([]types.Outcome, error) {
	if err := r.waitReady(ctx, w); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		workerLog, logErr := w.ReadLog()
		if logErr != nil {
			workerLog = fmt.Sprintf("<worker log unavailable: %v>", logErr)
		}
		r.log.Error("Worker did not become ready", "seq", seq, "case", tc.Name, "err", err)
		r.cfg.Reporter.WorkerNotReady(seq, tc, err, workerLog)
		return nil, err
	}

	if r.cfg.StabilizeDelay > 0 {
		r.log.Debug("Waiting for stream to stabilize", "delay", r.cfg.StabilizeDelay)
		select {
		case <-time.After(r.cfg.StabilizeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	outcomes := []types.Outcome{r.cfg.Status.Verify(ctx, w.StatusURL(), tc)}

	if r.cfg.Capture != nil {
		if r.cfg.Capture.Available() {
			outcomes = append(outcomes, r.cfg.Capture.Verify(ctx, spec.NDIName, tc))
		} else {
			o := types.NewOutcome(verify.CheckCapture)
			o.SoftPass("capture tool no longer available")
			metrics.RecordVerification(o)
			outcomes = append(outcomes, o)
		}
	}
	return outcomes, nil
}

// waitReady probes the worker until it answers, giving up early if the
// process exits.
func (r *Runner) waitReady(ctx context.Context, w Worker) error {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.Exited():
			cancel()
		case <-probeCtx.Done():
		}
	}()

	start := time.Now()
	err := r.cfg.Prober.WaitReady(probeCtx, w.StatusURL())
	metrics.RecordReadiness(err == nil, time.Since(start))
	if err == nil || ctx.Err() != nil {
		return err
	}
	select {
	case <-w.Exited():
		if exitErr := w.ExitErr(); exitErr != nil {
			return fmt.Errorf("worker exited before becoming ready (%v): %w", exitErr, err)
		}
		return fmt.Errorf("worker exited before becoming ready: %w", err)
	default:
		return err
	}
}

func (r *Runner) verdict(result types.CaseResult) types.TestStatus {
	if result.Error != nil {
		return types.TestStatusFail
	}
	for _, o := range result.Outcomes {
		if o.Passed {
			continue
		}
		if o.Check == verify.CheckCapture && r.cfg.CaptureAdvisory {
			r.log.Warn("Capture mismatch ignored", "mismatches", o.Mismatches)
			continue
		}
		return types.TestStatusFail
	}
	return types.TestStatusPass
}
