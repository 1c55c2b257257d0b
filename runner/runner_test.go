package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/html2ndi/ndi-acceptor/supervisor"
	"github.com/html2ndi/ndi-acceptor/types"
	"github.com/html2ndi/ndi-acceptor/verify"
)

type fakeWorker struct {
	spec    supervisor.LaunchSpec
	exited  chan struct{}
	exitErr error
	log     string

	mu    sync.Mutex
	stops int
}

func (w *fakeWorker) PID() int                 { return 4242 }
func (w *fakeWorker) StatusURL() string        { return w.spec.StatusURL() }
func (w *fakeWorker) Exited() <-chan struct{}  { return w.exited }
func (w *fakeWorker) ExitErr() error           { return w.exitErr }
func (w *fakeWorker) ReadLog() (string, error) { return w.log, nil }

func (w *fakeWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops++
	return nil
}

func (w *fakeWorker) stopCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stops
}

type fakeLauncher struct {
	failNames map[string]bool
	exitEarly map[string]bool
	onLaunch  func(seq int)

	mu        sync.Mutex
	workers   []*fakeWorker
	specs     []supervisor.LaunchSpec
	shutdowns int
}

func (l *fakeLauncher) Run(ctx context.Context, spec supervisor.LaunchSpec, fn func(ctx context.Context, w Worker) error) (err error) {
	w, err := l.launch(ctx, spec)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, w.Stop())
	}()
	return fn(ctx, w)
}

func (l *fakeLauncher) launch(ctx context.Context, spec supervisor.LaunchSpec) (*fakeWorker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.specs = append(l.specs, spec)
	seq := len(l.specs)
	l.mu.Unlock()
	if l.onLaunch != nil {
		l.onLaunch(seq)
	}
	if l.failNames[spec.Case.Name] {
		return nil, errors.New("exec: no such file")
	}
	w := &fakeWorker{spec: spec, exited: make(chan struct{}), log: "worker log for " + spec.NDIName}
	if l.exitEarly[spec.Case.Name] {
		w.exitErr = errors.New("exit status 3")
		close(w.exited)
	}
	l.mu.Lock()
	l.workers = append(l.workers, w)
	l.mu.Unlock()
	return w, nil
}

func (l *fakeLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shutdowns++
	return nil
}

// fakeProber reports ready unless the case's port is listed as never ready.
type fakeProber struct {
	neverReady map[int]bool
	block      bool
}

func (p *fakeProber) WaitReady(ctx context.Context, url string) error {
	for port := range p.neverReady {
		if url == fmt.Sprintf("http://127.0.0.1:%d/status", port) {
			if p.block {
				<-ctx.Done()
				return ctx.Err()
			}
			return errors.New("worker did not become ready")
		}
	}
	return nil
}

type fakeStatus struct {
	fail    map[string]bool
	panicOn map[string]bool
	calls   int
}

func (s *fakeStatus) Verify(_ context.Context, _ string, tc types.TestCase) types.Outcome {
	s.calls++
	if s.panicOn[tc.Name] {
		panic("status checker blew up")
	}
	o := types.NewOutcome(verify.CheckStatus)
	if s.fail[tc.Name] {
		o.Mismatch("fps", tc.FPS, tc.FPS+1)
	}
	return o
}

type fakeCapture struct {
	available bool
	outcome   func(tc types.TestCase) types.Outcome
	calls     int
	sources   []string
}

func (c *fakeCapture) Available() bool { return c.available }

func (c *fakeCapture) Verify(_ context.Context, source string, tc types.TestCase) types.Outcome {
	c.calls++
	c.sources = append(c.sources, source)
	if c.outcome != nil {
		return c.outcome(tc)
	}
	return types.NewOutcome(verify.CheckCapture)
}

type recordingReporter struct {
	started  []int
	notReady []string
	finished []types.CaseResult
}

func (r *recordingReporter) SuiteStarted(string, []types.TestCase) {}
func (r *recordingReporter) CaseStarted(seq int, _ types.TestCase) {
	r.started = append(r.started, seq)
}
func (r *recordingReporter) WorkerNotReady(_ int, _ types.TestCase, _ error, workerLog string) {
	r.notReady = append(r.notReady, workerLog)
}
func (r *recordingReporter) CaseFinished(res types.CaseResult) {
	r.finished = append(r.finished, res)
}

var testCases = []types.TestCase{
	{Name: "1080p60", Width: 1920, Height: 1080, FPS: 60, Progressive: true},
	{Name: "720p50", Width: 1280, Height: 720, FPS: 50, Progressive: true},
	{Name: "1080i30", Width: 1920, Height: 1080, FPS: 30, Progressive: false},
}

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	cfg.Log = log.NewLogger(log.DiscardHandler())
	if cfg.WorkerBinary == "" {
		cfg.WorkerBinary = "/opt/html2ndi/worker"
	}
	if cfg.Prober == nil {
		cfg.Prober = &fakeProber{}
	}
	if cfg.Status == nil {
		cfg.Status = &fakeStatus{}
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = t.TempDir()
	}
	cfg.PID = 99
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	_, err = New(Config{Launcher: &fakeLauncher{}})
	require.Error(t, err)
	_, err = New(Config{Launcher: &fakeLauncher{}, Prober: &fakeProber{}})
	require.Error(t, err)
	_, err = New(Config{Launcher: &fakeLauncher{}, Prober: &fakeProber{}, Status: &fakeStatus{}})
	require.Error(t, err)
}

func TestLaunchSpecPerSequence(t *testing.T) {
	r := newTestRunner(t, Config{Launcher: &fakeLauncher{}, ScratchDir: "/scratch", LogDir: "/logs"})
	spec := r.LaunchSpec(3, testCases[0])
	assert.Equal(t, "HTML2NDI-Test-3", spec.NDIName)
	assert.Equal(t, 8083, spec.HTTPPort)
	assert.Equal(t, filepath.Join("/scratch", "ndi-acceptor-cache-99-3"), spec.CachePath)
	assert.Equal(t, filepath.Join("/logs", "ndi-acceptor-worker-99-3.log"), spec.LogPath)
	assert.Equal(t, "about:blank", spec.URL)
	require.NoError(t, spec.Validate())
}

func TestRunAllPass(t *testing.T) {
	launcher := &fakeLauncher{}
	capture := &fakeCapture{available: true}
	rep := &recordingReporter{}
	r := newTestRunner(t, Config{Launcher: launcher, Capture: capture, Reporter: rep})

	res := r.Run(context.Background(), testCases)
	assert.Equal(t, types.Counters{Run: 3, Passed: 3, Failed: 0}, res.Counters)
	assert.Equal(t, types.TestStatusPass, res.Status())
	assert.False(t, res.Interrupted)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []int{1, 2, 3}, rep.started)
	assert.Len(t, rep.finished, 3)
	assert.Equal(t, 3, capture.calls)
	assert.Equal(t, []string{"HTML2NDI-Test-1", "HTML2NDI-Test-2", "HTML2NDI-Test-3"}, capture.sources)
	for _, w := range launcher.workers {
		assert.Equal(t, 1, w.stopCount())
	}
	assert.Equal(t, 1, launcher.shutdowns)
}

func TestRunCountersConsistentAfterEveryCase(t *testing.T) {
	launcher := &fakeLauncher{failNames: map[string]bool{"720p50": true}}
	status := &fakeStatus{fail: map[string]bool{"1080i30": true}}
	rep := &recordingReporter{}
	r := newTestRunner(t, Config{Launcher: launcher, Status: status, Reporter: rep})

	res := r.Run(context.Background(), testCases)
	assert.Equal(t, types.Counters{Run: 3, Passed: 1, Failed: 2}, res.Counters)
	assert.True(t, res.Counters.Consistent())
	assert.Equal(t, types.TestStatusFail, res.Status())

	running := types.Counters{}
	for _, cr := range rep.finished {
		running.Record(cr.Status == types.TestStatusPass)
		assert.True(t, running.Consistent())
	}
	assert.Equal(t, res.Counters, running)

	require.Len(t, res.Cases, 3)
	assert.ErrorContains(t, res.Cases[1].Error, "failed to start worker")
	assert.Equal(t, 2, status.calls)
}

func TestRunNeverReadySkipsVerification(t *testing.T) {
	launcher := &fakeLauncher{}
	status := &fakeStatus{}
	capture := &fakeCapture{available: true}
	rep := &recordingReporter{}
	r := newTestRunner(t, Config{
		Launcher: launcher,
		Prober:   &fakeProber{neverReady: map[int]bool{8081: true}},
		Status:   status,
		Capture:  capture,
		Reporter: rep,
	})

	res := r.Run(context.Background(), testCases[:1])
	assert.Equal(t, types.Counters{Run: 1, Passed: 0, Failed: 1}, res.Counters)
	assert.Empty(t, res.Cases[0].Outcomes)
	assert.Error(t, res.Cases[0].Error)
	assert.Zero(t, status.calls)
	assert.Zero(t, capture.calls)
	require.Len(t, launcher.workers, 1)
	assert.Equal(t, 1, launcher.workers[0].stopCount())
	assert.Equal(t, []string{"worker log for HTML2NDI-Test-1"}, rep.notReady)
}

func TestRunWorkerExitedBeforeReady(t *testing.T) {
	launcher := &fakeLauncher{exitEarly: map[string]bool{"1080p60": true}}
	r := newTestRunner(t, Config{
		Launcher: launcher,
		Prober:   &fakeProber{neverReady: map[int]bool{8081: true}, block: true},
	})

	done := make(chan *types.SuiteResult, 1)
	go func() { done <- r.Run(context.Background(), testCases[:1]) }()
	select {
	case res := <-done:
		assert.Equal(t, 1, res.Counters.Failed)
		assert.ErrorContains(t, res.Cases[0].Error, "exited before becoming ready (exit status 3)")
		assert.Equal(t, 1, launcher.workers[0].stopCount())
	case <-time.After(5 * time.Second):
		t.Fatal("runner kept probing an exited worker")
	}
}

func TestRunStopsWorkerWhenCheckerPanics(t *testing.T) {
	launcher := &fakeLauncher{}
	r := newTestRunner(t, Config{
		Launcher: launcher,
		Status:   &fakeStatus{panicOn: map[string]bool{"1080p60": true}},
	})

	require.PanicsWithValue(t, "status checker blew up", func() {
		r.Run(context.Background(), testCases[:1])
	})
	require.Len(t, launcher.workers, 1)
	assert.Equal(t, 1, launcher.workers[0].stopCount())
	assert.Equal(t, 1, launcher.shutdowns)
}

func TestRunLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{failNames: map[string]bool{"1080p60": true}}
	status := &fakeStatus{}
	r := newTestRunner(t, Config{Launcher: launcher, Status: status})

	res := r.Run(context.Background(), testCases[:1])
	assert.Equal(t, types.Counters{Run: 1, Failed: 1}, res.Counters)
	assert.ErrorContains(t, res.Cases[0].Error, "failed to start worker: exec: no such file")
	assert.Zero(t, status.calls)
	assert.Empty(t, launcher.workers)
}

func TestRunSoftCaptureDoesNotFail(t *testing.T) {
	capture := &fakeCapture{available: true, outcome: func(types.TestCase) types.Outcome {
		o := types.NewOutcome(verify.CheckCapture)
		o.SoftPass("no resolution found in capture output")
		return o
	}}
	r := newTestRunner(t, Config{Launcher: &fakeLauncher{}, Capture: capture})
	res := r.Run(context.Background(), testCases)
	assert.Equal(t, 3, res.Counters.Passed)
}

func TestRunCaptureMismatch(t *testing.T) {
	mismatch := func(tc types.TestCase) types.Outcome {
		o := types.NewOutcome(verify.CheckCapture)
		o.Mismatch("width", tc.Width, 640)
		return o
	}

	r := newTestRunner(t, Config{Launcher: &fakeLauncher{}, Capture: &fakeCapture{available: true, outcome: mismatch}})
	res := r.Run(context.Background(), testCases[:1])
	assert.Equal(t, 1, res.Counters.Failed)

	r = newTestRunner(t, Config{Launcher: &fakeLauncher{}, Capture: &fakeCapture{available: true, outcome: mismatch}, CaptureAdvisory: true})
	res = r.Run(context.Background(), testCases[:1])
	assert.Equal(t, 1, res.Counters.Passed)
	require.Len(t, res.Cases[0].Outcomes, 2)
	assert.False(t, res.Cases[0].Outcomes[1].Passed)
}

func TestRunCaptureUnavailableIsSoft(t *testing.T) {
	capture := &fakeCapture{available: false}
	r := newTestRunner(t, Config{Launcher: &fakeLauncher{}, Capture: capture})
	res := r.Run(context.Background(), testCases[:1])
	assert.Equal(t, 1, res.Counters.Passed)
	assert.Zero(t, capture.calls)
	require.Len(t, res.Cases[0].Outcomes, 2)
	assert.True(t, res.Cases[0].Outcomes[1].Soft)
}

func TestRunWithoutCapture(t *testing.T) {
	r := newTestRunner(t, Config{Launcher: &fakeLauncher{}})
	res := r.Run(context.Background(), testCases[:1])
	require.Len(t, res.Cases[0].Outcomes, 1)
	assert.Equal(t, verify.CheckStatus, res.Cases[0].Outcomes[0].Check)
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	launcher := &fakeLauncher{onLaunch: func(seq int) {
		if seq == 1 {
			cancel()
		}
	}}
	rep := &recordingReporter{}
	r := newTestRunner(t, Config{Launcher: launcher, Reporter: rep, StabilizeDelay: time.Hour})

	done := make(chan *types.SuiteResult, 1)
	go func() { done <- r.Run(ctx, testCases) }()

	var res *types.SuiteResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt did not stop the suite")
	}
	assert.True(t, res.Interrupted)
	assert.Equal(t, types.TestStatusSkip, res.Status())
	assert.Equal(t, types.Counters{}, res.Counters)
	require.Len(t, res.Cases, 1)
	assert.Equal(t, types.TestStatusSkip, res.Cases[0].Status)
	assert.Len(t, launcher.specs, 1)
	for _, w := range launcher.workers {
		assert.Equal(t, 1, w.stopCount())
	}
	assert.Equal(t, 1, launcher.shutdowns)
	assert.Empty(t, rep.finished)
}
