package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/html2ndi/ndi-acceptor/metrics"
)

// maxSurfacedLogBytes caps how much of a worker log ReadLog returns.
const maxSurfacedLogBytes = 64 * 1024

// Worker is a running worker process owned by a Supervisor.
type Worker struct {
	spec        LaunchSpec
	cmd         *exec.Cmd
	logFile     *os.File
	log         log.Logger
	stopTimeout time.Duration
	keepLogs    bool
	launchedAt  time.Time

	exited  chan struct{}
	waitErr error

	stopOnce  sync.Once
	stopErr   error
	stopMode  string
	onStopped func(*Worker)
}

func (w *Worker) reap() {
	w.waitErr = w.cmd.Wait()
	close(w.exited)
}

// PID returns the worker's process ID.
func (w *Worker) PID() int {
	return w.cmd.Process.Pid
}

// Spec returns the LaunchSpec the worker was started from.
func (w *Worker) Spec() LaunchSpec {
	return w.spec
}

// StatusURL returns the worker's status endpoint.
func (w *Worker) StatusURL() string {
	return w.spec.StatusURL()
}

// Exited is closed once the process has exited and been reaped.
func (w *Worker) Exited() <-chan struct{} {
	return w.exited
}

// ExitErr returns the process wait error. Only meaningful after Exited is closed.
func (w *Worker) ExitErr() error {
	select {
	case <-w.exited:
		return w.waitErr
	default:
		return nil
	}
}

// StopMode reports how the process ended: "exited" if it was gone before
// Stop, "graceful" after SIGTERM, "forced" after SIGKILL. Empty until stopped.
func (w *Worker) StopMode() string {
	return w.stopMode
}

// ReadLog returns the tail of the captured worker output with terminal
// escape sequences removed.
func (w *Worker) ReadLog() (string, error) {
	f, err := os.Open(w.spec.LogPath)
	if err != nil {
		return "", fmt.Errorf("failed to open worker log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat worker log: %w", err)
	}
	if info.Size() > maxSurfacedLogBytes {
		if _, err := f.Seek(info.Size()-maxSurfacedLogBytes, io.SeekStart); err != nil {
			return "", fmt.Errorf("failed to seek worker log: %w", err)
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read worker log: %w", err)
	}
	return stripansi.Strip(string(data)), nil
}

// Stop terminates the worker: SIGTERM, then SIGKILL once the stop timeout
// elapses. The log is closed and the cache path removed whichever way the
// process ended. Only the first call does any work; later calls return the
// first result.
func (w *Worker) Stop() error {
	w.stopOnce.Do(func() {
		w.stopErr = w.stop()
	})
	return w.stopErr
}

func (w *Worker) stop() error {
	select {
	case <-w.exited:
		w.stopMode = "exited"
		w.log.Info("Worker already exited", "err", w.waitErr)
	default:
		w.log.Info("Stopping worker")
		if err := terminate(w.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
			w.log.Warn("Failed to signal worker", "err", err)
		}
		select {
		case <-w.exited:
			w.stopMode = "graceful"
		case <-time.After(w.stopTimeout):
			w.log.Warn("Worker did not exit in time, killing", "timeout", w.stopTimeout)
			if err := kill(w.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
				w.log.Error("Failed to kill worker", "err", err)
			}
			<-w.exited
			w.stopMode = "forced"
		}
	}
	metrics.RecordWorkerStop(w.stopMode)

	var errs []error
	if err := w.logFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to close worker log: %w", err))
	}
	if err := os.RemoveAll(w.spec.CachePath); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove cache path: %w", err))
	}
	if !w.keepLogs {
		if err := os.Remove(w.spec.LogPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove worker log: %w", err))
		}
	}
	if w.onStopped != nil {
		w.onStopped(w)
	}

	w.log.Info("Worker stopped", "mode", w.stopMode, "uptime", time.Since(w.launchedAt).Round(time.Millisecond))
	return errors.Join(errs...)
}
