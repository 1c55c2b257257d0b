// Package envcheck verifies that the tools and artifacts a run depends on are
// present before any worker is launched.
package envcheck

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/html2ndi/ndi-acceptor/flags"
)

const (
	FFmpegBinary    = "ffmpeg"
	GStreamerBinary = "gst-launch-1.0"
	JQBinary        = "jq"
)

// LookPathFunc resolves an executable name against PATH.
type LookPathFunc func(file string) (string, error)

// Config describes what to check.
type Config struct {
	Log          log.Logger
	WorkerBinary string
	CaptureTool  flags.CaptureToolType
	LookPath     LookPathFunc // defaults to exec.LookPath
}

// Report summarises the environment.
type Report struct {
	FFmpeg     string // resolved path, empty when absent
	GStreamer  string
	JQ         string
	Worker     string
	Capture    flags.CaptureToolType // tool selected for the run, CaptureToolNone if disabled
	Advisories []string
}

// PrerequisiteError lists every fatal problem found in the environment.
type PrerequisiteError struct {
	Problems []string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("prerequisites not met: %s", strings.Join(e.Problems, "; "))
}

// Check inspects the environment. A non-nil error is always a *PrerequisiteError
// and means no test case can be verified.
func Check(cfg Config) (*Report, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if cfg.CaptureTool == "" {
		cfg.CaptureTool = flags.CaptureToolAuto
	}

	cfg.Log.Info("Checking prerequisites...")

	report := &Report{}
	var problems []string

	report.FFmpeg = lookup(cfg.LookPath, FFmpegBinary)
	report.GStreamer = lookup(cfg.LookPath, GStreamerBinary)
	report.JQ = lookup(cfg.LookPath, JQBinary)

	capture, err := selectCaptureTool(cfg.CaptureTool, report)
	if err != nil {
		problems = append(problems, err.Error())
	}
	report.Capture = capture

	if err := checkWorker(cfg.WorkerBinary); err != nil {
		problems = append(problems, err.Error())
	} else {
		report.Worker = cfg.WorkerBinary
	}

	if report.JQ == "" {
		report.Advisories = append(report.Advisories, "jq not found, install it to inspect worker status output by hand")
	}
	for _, a := range report.Advisories {
		cfg.Log.Warn(a)
	}

	if len(problems) > 0 {
		for _, p := range problems {
			cfg.Log.Error("Prerequisite check failed", "problem", p)
		}
		return report, &PrerequisiteError{Problems: problems}
	}

	cfg.Log.Info("Prerequisites OK",
		"worker", report.Worker,
		"capture", report.Capture,
		"ffmpeg", report.FFmpeg,
		"gstreamer", report.GStreamer)
	return report, nil
}

func lookup(lookPath LookPathFunc, name string) string {
	path, err := lookPath(name)
	if err != nil {
		return ""
	}
	return path
}

func selectCaptureTool(requested flags.CaptureToolType, report *Report) (flags.CaptureToolType, error) {
	switch requested {
	case flags.CaptureToolNone:
		report.Advisories = append(report.Advisories, "capture verification disabled, only the status interface will be checked")
		return flags.CaptureToolNone, nil
	case flags.CaptureToolFFmpeg:
		if report.FFmpeg == "" {
			return flags.CaptureToolNone, fmt.Errorf("%s not found in PATH", FFmpegBinary)
		}
		return flags.CaptureToolFFmpeg, nil
	case flags.CaptureToolGStreamer:
		if report.GStreamer == "" {
			return flags.CaptureToolNone, fmt.Errorf("%s not found in PATH", GStreamerBinary)
		}
		return flags.CaptureToolGStreamer, nil
	case flags.CaptureToolAuto:
		if report.FFmpeg != "" {
			return flags.CaptureToolFFmpeg, nil
		}
		if report.GStreamer != "" {
			return flags.CaptureToolGStreamer, nil
		}
		return flags.CaptureToolNone, fmt.Errorf("neither %s nor %s found in PATH (install ffmpeg built with libndi_newtek, or gstreamer with the NDI plugin)",
			FFmpegBinary, GStreamerBinary)
	default:
		return flags.CaptureToolNone, fmt.Errorf("unknown capture tool %q", requested)
	}
}

func checkWorker(path string) error {
	if path == "" {
		return fmt.Errorf("worker binary path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("worker binary not found at %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("worker binary %s is not a regular file", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("worker binary %s is not executable", path)
	}
	return nil
}
