// Package supervisor launches worker processes and owns their teardown.
//
// A Supervisor tracks at most one live worker. Every launched worker is
// stopped exactly once: Worker.Stop is idempotent, Supervisor.Run scopes a
// worker to a callback, and Supervisor.Shutdown stops whatever is still
// tracked when the harness exits early.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/html2ndi/ndi-acceptor/metrics"
)

const DefaultStopTimeout = 5 * time.Second

// ErrWorkerActive is returned when a launch is attempted while another worker is tracked.
var ErrWorkerActive = errors.New("a worker is already running")

// Config holds supervisor configuration
type Config struct {
	Log         log.Logger
	StopTimeout time.Duration // grace period between SIGTERM and SIGKILL
	KeepLogs    bool          // keep worker log files after teardown
	// CmdBuilder creates the worker command. Defaults to exec.Command.
	CmdBuilder func(name string, arg ...string) *exec.Cmd
}

// Supervisor spawns workers one at a time.
type Supervisor struct {
	cfg Config

	mu     sync.Mutex
	active *Worker
}

// New creates a supervisor, filling in defaults.
func New(cfg Config) *Supervisor {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.Command
	}
	return &Supervisor{cfg: cfg}
}

// Launch starts a worker for spec and returns its handle. It does not wait for
// the worker to become ready.
func (s *Supervisor) Launch(ctx context.Context, spec LaunchSpec) (*Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid launch spec: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, fmt.Errorf("%w (pid %d)", ErrWorkerActive, s.active.PID())
	}

	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(spec.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open worker log: %w", err)
	}

	args := spec.Args()
	cmd := s.cfg.CmdBuilder(spec.Binary, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setProcessGroup(cmd)

	s.cfg.Log.Info("Starting worker",
		"case", spec.Case.String(),
		"scan", spec.Case.ScanMode(),
		"ndi_name", spec.NDIName,
		"http_port", spec.HTTPPort,
		"log", spec.LogPath)
	s.cfg.Log.Debug("Worker command", "binary", spec.Binary, "args", args)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		if !s.cfg.KeepLogs {
			_ = os.Remove(spec.LogPath)
		}
		metrics.RecordErrorDetails("worker_launch", err)
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	w := &Worker{
		spec:        spec,
		cmd:         cmd,
		logFile:     logFile,
		log:         s.cfg.Log.With("pid", cmd.Process.Pid),
		stopTimeout: s.cfg.StopTimeout,
		keepLogs:    s.cfg.KeepLogs,
		exited:      make(chan struct{}),
		launchedAt:  time.Now(),
		onStopped:   s.release,
	}
	go w.reap()

	s.active = w
	w.log.Info("Worker started")
	return w, nil
}

// Run launches a worker, hands it to fn and stops it when fn returns, on
// every path including a panic in fn.
func (s *Supervisor) Run(ctx context.Context, spec LaunchSpec, fn func(ctx context.Context, w *Worker) error) (err error) {
	w, err := s.Launch(ctx, spec)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := w.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()
	return fn(ctx, w)
}

// Active returns the tracked worker, or nil.
func (s *Supervisor) Active() *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Shutdown stops the tracked worker, if any. Safe to call repeatedly.
func (s *Supervisor) Shutdown() error {
	w := s.Active()
	if w == nil {
		return nil
	}
	s.cfg.Log.Warn("Stopping worker left running", "pid", w.PID())
	return w.Stop()
}

func (s *Supervisor) release(w *Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == w {
		s.active = nil
	}
}
