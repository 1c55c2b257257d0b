package acceptor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/html2ndi/ndi-acceptor/flags"
)

// parseConfig runs a cli app with the real flag set and returns the config
// NewConfig builds from args.
func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg    *Config
		cfgErr error
	)
	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
		return nil
	}
	err := app.RunContext(context.Background(), append([]string{"ndi-acceptor"}, args...))
	if err != nil {
		return nil, err
	}
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(t, "--worker-binary", "bin/html2ndi")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.WorkerBinary))
	assert.Equal(t, "html2ndi", filepath.Base(cfg.WorkerBinary))
	assert.Empty(t, cfg.SuiteFile)
	assert.Equal(t, "about:blank", cfg.TargetURL)
	assert.Equal(t, "HTML2NDI-Test", cfg.NDINamePrefix)
	assert.Equal(t, 8080, cfg.BasePort)
	assert.Equal(t, flags.CaptureToolAuto, cfg.CaptureTool)
	assert.Equal(t, 15*time.Second, cfg.CaptureTimeout)
	assert.Equal(t, 2*time.Second, cfg.CaptureDuration)
	assert.Equal(t, 1.0, cfg.FPSTolerance)
	assert.Equal(t, 30, cfg.ReadyAttempts)
	assert.Equal(t, time.Second, cfg.ReadyInterval)
	assert.Equal(t, 5*time.Second, cfg.StopTimeout)
	assert.Equal(t, 3*time.Second, cfg.StabilizeDelay)
	assert.False(t, cfg.CaptureAdvisory)
	assert.False(t, cfg.KeepLogs)
	assert.True(t, filepath.IsAbs(cfg.ScratchDir))
	assert.Equal(t, cfg.ScratchDir, cfg.LogDir)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestNewConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := parseConfig(t,
		"--worker-binary", "/opt/html2ndi",
		"--suite", "suite.yaml",
		"--base-port", "9000",
		"--worker-arg", "--verbose",
		"--worker-arg", "--gpu=off",
		"--scratch-dir", dir,
		"--logdir", filepath.Join(dir, "logs"),
		"--capture-tool", "gstreamer",
		"--capture-advisory",
		"--fps-tolerance", "0.5",
		"--ready-attempts", "10",
		"--stabilize-delay", "0s",
		"--summary-file", "out/summary.json",
	)
	require.NoError(t, err)
	assert.Equal(t, "/opt/html2ndi", cfg.WorkerBinary)
	assert.True(t, filepath.IsAbs(cfg.SuiteFile))
	assert.Equal(t, 9000, cfg.BasePort)
	assert.Equal(t, []string{"--verbose", "--gpu=off"}, cfg.WorkerArgs)
	assert.Equal(t, dir, cfg.ScratchDir)
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.LogDir)
	assert.Equal(t, flags.CaptureToolGStreamer, cfg.CaptureTool)
	assert.True(t, cfg.CaptureAdvisory)
	assert.Equal(t, 0.5, cfg.FPSTolerance)
	assert.Equal(t, 10, cfg.ReadyAttempts)
	assert.Zero(t, cfg.StabilizeDelay)
	assert.True(t, filepath.IsAbs(cfg.SummaryFile))
}

func TestNewConfigMissingWorker(t *testing.T) {
	_, err := parseConfig(t)
	require.Error(t, err)
}

func TestNewConfigRejectsBadCaptureTool(t *testing.T) {
	_, err := parseConfig(t, "--worker-binary", "/w", "--capture-tool", "vlc")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WorkerBinary:    "/w",
			BasePort:        8080,
			NDINamePrefix:   "p",
			CaptureTimeout:  15 * time.Second,
			CaptureDuration: 2 * time.Second,
			FPSTolerance:    1,
			ReadyAttempts:   30,
			ReadyInterval:   time.Second,
			StopTimeout:     5 * time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no worker", func(c *Config) { c.WorkerBinary = "" }},
		{"port", func(c *Config) { c.BasePort = 0 }},
		{"port too high", func(c *Config) { c.BasePort = 65535 }},
		{"prefix", func(c *Config) { c.NDINamePrefix = "" }},
		{"capture timeout", func(c *Config) { c.CaptureTimeout = 0 }},
		{"capture duration", func(c *Config) { c.CaptureDuration = 0 }},
		{"duration exceeds timeout", func(c *Config) { c.CaptureDuration = 20 * time.Second }},
		{"negative tolerance", func(c *Config) { c.FPSTolerance = -1 }},
		{"attempts", func(c *Config) { c.ReadyAttempts = 0 }},
		{"interval", func(c *Config) { c.ReadyInterval = 0 }},
		{"stop timeout", func(c *Config) { c.StopTimeout = 0 }},
		{"negative stabilize", func(c *Config) { c.StabilizeDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
