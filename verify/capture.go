package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/html2ndi/ndi-acceptor/flags"
	"github.com/html2ndi/ndi-acceptor/metrics"
	"github.com/html2ndi/ndi-acceptor/types"
)

const (
	CheckCapture = "capture"

	DefaultCaptureTimeout  = 15 * time.Second
	DefaultCaptureDuration = 2 * time.Second
	DefaultFPSTolerance    = 1.0
)

// ScanMode is the scan type reported by a capture tool.
type ScanMode string

const (
	ScanUnknown     ScanMode = ""
	ScanProgressive ScanMode = "progressive"
	ScanInterlaced  ScanMode = "interlaced"
)

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Diagnostics is what could be recovered from a capture tool's output.
// Unrecognised values stay nil or ScanUnknown.
type Diagnostics struct {
	Resolution *Resolution
	FPS        *float64
	Scan       ScanMode
}

// CapturePolicy controls how long a capture may take and how strictly its
// results are compared.
type CapturePolicy struct {
	Timeout      time.Duration // hard limit on the tool's run time
	Duration     time.Duration // how much of the stream to read
	FPSTolerance float64       // absolute frame rate tolerance
}

// DefaultCapturePolicy returns the stock capture limits.
func DefaultCapturePolicy() CapturePolicy {
	return CapturePolicy{
		Timeout:      DefaultCaptureTimeout,
		Duration:     DefaultCaptureDuration,
		FPSTolerance: DefaultFPSTolerance,
	}
}

func (p CapturePolicy) withDefaults() CapturePolicy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultCaptureTimeout
	}
	if p.Duration <= 0 {
		p.Duration = DefaultCaptureDuration
	}
	if p.FPSTolerance < 0 {
		p.FPSTolerance = DefaultFPSTolerance
	}
	return p
}

// CaptureTool knows how to invoke one external capture program and read its
// diagnostic output.
type CaptureTool interface {
	Name() string
	Binary() string
	Args(source string, expected types.TestCase, duration time.Duration) []string
	Parse(output string) Diagnostics
}

// ToolFor returns the capture tool for a resolved selection, or nil for none.
func ToolFor(t flags.CaptureToolType) (CaptureTool, error) {
	switch t {
	case flags.CaptureToolFFmpeg:
		return FFmpeg{}, nil
	case flags.CaptureToolGStreamer:
		return GStreamer{}, nil
	case flags.CaptureToolNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("no capture tool for selection %q", t)
	}
}

// CompareCapture checks capture diagnostics against the expected
// configuration. Without a resolution nothing can be assessed and the result
// is a soft pass. Values that were not found are not penalised.
func CompareCapture(expected types.TestCase, diag Diagnostics, policy CapturePolicy) types.Outcome {
	policy = policy.withDefaults()
	o := types.NewOutcome(CheckCapture)
	if diag.Resolution == nil {
		o.SoftPass("no resolution found in capture output")
		return o
	}
	if diag.Resolution.Width != expected.Width {
		o.Mismatch("width", expected.Width, diag.Resolution.Width)
	}
	if diag.Resolution.Height != expected.Height {
		o.Mismatch("height", expected.Height, diag.Resolution.Height)
	}
	if diag.FPS != nil {
		if math.Abs(*diag.FPS-float64(expected.FPS)) > policy.FPSTolerance {
			o.Mismatch("fps", expected.FPS, *diag.FPS)
		}
	} else {
		o.Warn("frame rate not found in capture output")
	}
	switch diag.Scan {
	case ScanProgressive, ScanInterlaced:
		if (diag.Scan == ScanProgressive) != expected.Progressive {
			o.Mismatch("scan", expected.ScanMode(), diag.Scan)
		}
	default:
		o.Warn("scan type not found in capture output")
	}
	return o
}

// CaptureConfig configures a CaptureVerifier.
type CaptureConfig struct {
	Log    log.Logger
	Tool   CaptureTool
	Policy CapturePolicy
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// CmdBuilder defaults to exec.CommandContext.
	CmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd
	// MaxOutputBytes caps how much tool output is kept for parsing.
	MaxOutputBytes int
}

// CaptureVerifier attaches a capture tool to a live stream and compares what
// it reports with the expected configuration. Nothing about running the tool
// can fail a test case; only a parsed mismatch can.
type CaptureVerifier struct {
	cfg CaptureConfig
}

// NewCaptureVerifier creates a capture verifier.
func NewCaptureVerifier(cfg CaptureConfig) (*CaptureVerifier, error) {
	if cfg.Tool == nil {
		return nil, errors.New("capture tool is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	cfg.Policy = cfg.Policy.withDefaults()
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}
	return &CaptureVerifier{cfg: cfg}, nil
}

// Tool returns the configured capture tool.
func (v *CaptureVerifier) Tool() CaptureTool {
	return v.cfg.Tool
}

// Available reports whether the tool can currently be found on PATH.
func (v *CaptureVerifier) Available() bool {
	_, err := v.cfg.LookPath(v.cfg.Tool.Binary())
	return err == nil
}

// Verify captures source for the policy duration and compares the result
// with expected. A missing tool, a start failure or a timeout gives a soft
// pass. Output is parsed whatever the tool's exit status.
func (v *CaptureVerifier) Verify(ctx context.Context, source string, expected types.TestCase) types.Outcome {
	o := v.verify(ctx, source, expected)
	metrics.RecordVerification(o)
	return o
}

func (v *CaptureVerifier) verify(ctx context.Context, source string, expected types.TestCase) types.Outcome {
	tool := v.cfg.Tool
	o := types.NewOutcome(CheckCapture)

	bin, err := v.cfg.LookPath(tool.Binary())
	if err != nil {
		o.SoftPass("%s not available, stream not captured: %v", tool.Name(), err)
		return o
	}

	runCtx, cancel := context.WithTimeout(ctx, v.cfg.Policy.Timeout)
	defer cancel()

	args := tool.Args(source, expected, v.cfg.Policy.Duration)
	cmd := v.cfg.CmdBuilder(runCtx, bin, args...)
	output := newHeadBuffer(v.cfg.MaxOutputBytes)
	cmd.Stdout = io.Discard
	cmd.Stderr = output
	cmd.WaitDelay = time.Second

	v.cfg.Log.Info("Capturing stream", "tool", tool.Name(), "source", source, "duration", v.cfg.Policy.Duration)
	v.cfg.Log.Debug("Capture command", "binary", bin, "args", args)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		o.SoftPass("%s could not be started: %v", tool.Name(), err)
		return o
	}
	runErr := cmd.Wait()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		o.SoftPass("%s timed out after %s", tool.Name(), v.cfg.Policy.Timeout)
		return o
	}
	if ctx.Err() != nil {
		o.SoftPass("capture interrupted: %v", ctx.Err())
		return o
	}
	if runErr != nil {
		v.cfg.Log.Debug("Capture tool exited with error", "tool", tool.Name(), "err", runErr)
	}
	if output.Truncated() {
		v.cfg.Log.Debug("Capture output truncated", "kept_bytes", v.cfg.MaxOutputBytes)
	}

	diag := tool.Parse(output.String())
	v.cfg.Log.Info("Capture diagnostics",
		"tool", tool.Name(),
		"resolution", formatResolution(diag.Resolution),
		"fps", formatFPS(diag.FPS),
		"scan", diag.Scan,
		"elapsed", elapsed.Round(time.Millisecond))

	result := CompareCapture(expected, diag, v.cfg.Policy)
	if runErr != nil && result.Soft {
		result.Warn("%s exited with error: %v", tool.Name(), runErr)
	}
	return result
}

func formatResolution(r *Resolution) string {
	if r == nil {
		return "unknown"
	}
	return r.String()
}

func formatFPS(f *float64) string {
	if f == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", *f)
}
