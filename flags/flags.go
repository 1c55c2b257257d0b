package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "NDI_ACCEPTOR"

// CaptureToolType selects the external tool used to attach to the live stream.
type CaptureToolType string

const (
	CaptureToolAuto      CaptureToolType = "auto"
	CaptureToolFFmpeg    CaptureToolType = "ffmpeg"
	CaptureToolGStreamer CaptureToolType = "gstreamer"
	CaptureToolNone      CaptureToolType = "none"
)

func (c CaptureToolType) String() string {
	return string(c)
}

func (c CaptureToolType) IsValid() bool {
	switch c {
	case CaptureToolAuto, CaptureToolFFmpeg, CaptureToolGStreamer, CaptureToolNone:
		return true
	}
	return false
}

// ValidCaptureToolTypes returns all valid capture tool selections.
func ValidCaptureToolTypes() []CaptureToolType {
	return []CaptureToolType{CaptureToolAuto, CaptureToolFFmpeg, CaptureToolGStreamer, CaptureToolNone}
}

func validateCaptureTool(value string) error {
	if !CaptureToolType(value).IsValid() {
		return fmt.Errorf("capture-tool must be one of %v, got %q", ValidCaptureToolTypes(), value)
	}
	return nil
}

var (
	WorkerBinary = &cli.StringFlag{
		Name:     "worker-binary",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "WORKER_BINARY"),
		Usage:    "Path to the html2ndi worker executable under test",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE"),
		Usage:   "Path to a test matrix file (.yaml or .toml). Omit to run the built-in matrix",
	}
	TargetURL = &cli.StringFlag{
		Name:    "target-url",
		Value:   "about:blank",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TARGET_URL"),
		Usage:   "URL the worker renders during every test case",
	}
	NDINamePrefix = &cli.StringFlag{
		Name:    "ndi-name-prefix",
		Value:   "HTML2NDI-Test",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NDI_NAME_PREFIX"),
		Usage:   "Prefix of the NDI source name; the test sequence number is appended",
	}
	BasePort = &cli.IntFlag{
		Name:    "base-port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BASE_PORT"),
		Usage:   "Status port base; test N uses base-port+N",
	}
	WorkerArgs = &cli.StringSliceFlag{
		Name:    "worker-arg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKER_ARG"),
		Usage:   "Extra argument appended to every worker command line (repeatable)",
	}
	ScratchDir = &cli.StringFlag{
		Name:    "scratch-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCRATCH_DIR"),
		Usage:   "Directory holding per-test worker cache paths (default: system temp dir)",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory holding per-test worker log files (default: system temp dir)",
	}
	KeepLogs = &cli.BoolFlag{
		Name:    "keep-logs",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KEEP_LOGS"),
		Usage:   "Keep worker log files after teardown instead of removing them",
	}
	CaptureTool = &cli.StringFlag{
		Name:    "capture-tool",
		Value:   string(CaptureToolAuto),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAPTURE_TOOL"),
		Usage:   "Capture tool used to observe the live stream: auto, ffmpeg, gstreamer or none",
		Action: func(ctx *cli.Context, value string) error {
			return validateCaptureTool(value)
		},
	}
	CaptureTimeout = &cli.DurationFlag{
		Name:    "capture-timeout",
		Value:   15 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAPTURE_TIMEOUT"),
		Usage:   "Hard timeout for one capture tool invocation",
	}
	CaptureDuration = &cli.DurationFlag{
		Name:    "capture-duration",
		Value:   2 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAPTURE_DURATION"),
		Usage:   "How long the capture tool attaches to the stream",
	}
	CaptureAdvisory = &cli.BoolFlag{
		Name:    "capture-advisory",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAPTURE_ADVISORY"),
		Usage:   "Report capture mismatches without failing the test case",
	}
	FPSTolerance = &cli.Float64Flag{
		Name:    "fps-tolerance",
		Value:   1.0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FPS_TOLERANCE"),
		Usage:   "Absolute frame rate tolerance applied to capture measurements",
	}
	ReadyAttempts = &cli.IntFlag{
		Name:    "ready-attempts",
		Value:   30,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "READY_ATTEMPTS"),
		Usage:   "Number of status polls before a worker is declared not ready",
	}
	ReadyInterval = &cli.DurationFlag{
		Name:    "ready-interval",
		Value:   time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "READY_INTERVAL"),
		Usage:   "Interval between status polls while waiting for readiness",
	}
	StopTimeout = &cli.DurationFlag{
		Name:    "stop-timeout",
		Value:   5 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STOP_TIMEOUT"),
		Usage:   "Grace period after SIGTERM before the worker is killed",
	}
	StabilizeDelay = &cli.DurationFlag{
		Name:    "stabilize-delay",
		Value:   3 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STABILIZE_DELAY"),
		Usage:   "Delay between readiness and verification to let the stream settle",
	}
	SummaryFile = &cli.StringFlag{
		Name:    "summary-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUMMARY_FILE"),
		Usage:   "Optional path where a JSON summary of the run is written",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Address for the /healthz endpoint, e.g. 0.0.0.0:7301. Disabled when empty",
	}
	Telemetry = &cli.BoolFlag{
		Name:    "telemetry",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TELEMETRY"),
		Usage:   "Export OpenTelemetry traces using the standard OTEL_* environment",
	}
)

var requiredFlags = []cli.Flag{
	WorkerBinary,
}

var optionalFlags = []cli.Flag{
	Suite,
	TargetURL,
	NDINamePrefix,
	BasePort,
	WorkerArgs,
	ScratchDir,
	LogDir,
	KeepLogs,
	CaptureTool,
	CaptureTimeout,
	CaptureDuration,
	CaptureAdvisory,
	FPSTolerance,
	ReadyAttempts,
	ReadyInterval,
	StopTimeout,
	StabilizeDelay,
	SummaryFile,
	HealthzAddr,
	Telemetry,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
