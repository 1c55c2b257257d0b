package acceptor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/html2ndi/ndi-acceptor/flags"
)

// Config holds the application configuration
type Config struct {
	WorkerBinary    string
	WorkerArgs      []string
	SuiteFile       string // empty selects the built-in matrix
	TargetURL       string
	NDINamePrefix   string
	BasePort        int
	ScratchDir      string
	LogDir          string
	KeepLogs        bool
	CaptureTool     flags.CaptureToolType
	CaptureTimeout  time.Duration
	CaptureDuration time.Duration
	CaptureAdvisory bool    // capture mismatches are reported but never fail a case
	FPSTolerance    float64 // absolute frame rate tolerance for capture checks
	ReadyAttempts   int
	ReadyInterval   time.Duration
	StopTimeout     time.Duration // grace period between SIGTERM and SIGKILL
	StabilizeDelay  time.Duration
	SummaryFile     string
	HealthzAddr     string
	Telemetry       bool
	Metrics         opmetrics.CLIConfig
	Log             log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	workerBinary, err := filepath.Abs(ctx.String(flags.WorkerBinary.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for worker binary: %w", err)
	}

	var suiteFile string
	if s := ctx.String(flags.Suite.Name); s != "" {
		suiteFile, err = filepath.Abs(s)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for suite '%s': %w", s, err)
		}
	}

	scratchDir := ctx.String(flags.ScratchDir.Name)
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	scratchDir, err = filepath.Abs(scratchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for scratch directory '%s': %w", scratchDir, err)
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = scratchDir
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	var summaryFile string
	if s := ctx.String(flags.SummaryFile.Name); s != "" {
		summaryFile, err = filepath.Abs(s)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for summary file '%s': %w", s, err)
		}
	}

	captureTool := flags.CaptureToolType(ctx.String(flags.CaptureTool.Name))
	if !captureTool.IsValid() {
		return nil, fmt.Errorf("invalid capture tool: %s. Must be one of: %v", captureTool, flags.ValidCaptureToolTypes())
	}

	cfg := &Config{
		WorkerBinary:    workerBinary,
		WorkerArgs:      ctx.StringSlice(flags.WorkerArgs.Name),
		SuiteFile:       suiteFile,
		TargetURL:       ctx.String(flags.TargetURL.Name),
		NDINamePrefix:   ctx.String(flags.NDINamePrefix.Name),
		BasePort:        ctx.Int(flags.BasePort.Name),
		ScratchDir:      scratchDir,
		LogDir:          logDir,
		KeepLogs:        ctx.Bool(flags.KeepLogs.Name),
		CaptureTool:     captureTool,
		CaptureTimeout:  ctx.Duration(flags.CaptureTimeout.Name),
		CaptureDuration: ctx.Duration(flags.CaptureDuration.Name),
		CaptureAdvisory: ctx.Bool(flags.CaptureAdvisory.Name),
		FPSTolerance:    ctx.Float64(flags.FPSTolerance.Name),
		ReadyAttempts:   ctx.Int(flags.ReadyAttempts.Name),
		ReadyInterval:   ctx.Duration(flags.ReadyInterval.Name),
		StopTimeout:     ctx.Duration(flags.StopTimeout.Name),
		StabilizeDelay:  ctx.Duration(flags.StabilizeDelay.Name),
		SummaryFile:     summaryFile,
		HealthzAddr:     ctx.String(flags.HealthzAddr.Name),
		Telemetry:       ctx.Bool(flags.Telemetry.Name),
		Metrics:         opmetrics.ReadCLIConfig(ctx),
		Log:             log,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the numeric settings are usable.
func (c *Config) Validate() error {
	if c.WorkerBinary == "" {
		return errors.New("worker binary is required")
	}
	if c.BasePort <= 0 || c.BasePort >= 65535 {
		return fmt.Errorf("base port %d out of range", c.BasePort)
	}
	if c.NDINamePrefix == "" {
		return errors.New("ndi name prefix must not be empty")
	}
	if c.CaptureTimeout <= 0 {
		return fmt.Errorf("capture timeout must be positive, got %s", c.CaptureTimeout)
	}
	if c.CaptureDuration <= 0 {
		return fmt.Errorf("capture duration must be positive, got %s", c.CaptureDuration)
	}
	if c.CaptureDuration >= c.CaptureTimeout {
		return fmt.Errorf("capture duration %s must be shorter than capture timeout %s", c.CaptureDuration, c.CaptureTimeout)
	}
	if c.FPSTolerance < 0 {
		return fmt.Errorf("fps tolerance must not be negative, got %v", c.FPSTolerance)
	}
	if c.ReadyAttempts <= 0 {
		return fmt.Errorf("ready attempts must be positive, got %d", c.ReadyAttempts)
	}
	if c.ReadyInterval <= 0 {
		return fmt.Errorf("ready interval must be positive, got %s", c.ReadyInterval)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop timeout must be positive, got %s", c.StopTimeout)
	}
	if c.StabilizeDelay < 0 {
		return fmt.Errorf("stabilize delay must not be negative, got %s", c.StabilizeDelay)
	}
	if err := c.Metrics.Check(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	return nil
}
