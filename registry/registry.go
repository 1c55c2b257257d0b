package registry

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/html2ndi/ndi-acceptor/types"
)

// SuiteConfig is the on-disk layout of a test matrix file.
type SuiteConfig struct {
	Tests []types.TestCase `yaml:"tests" toml:"tests"`
}

// DefaultTestCases is the matrix run when no suite file is given: the common
// broadcast formats the worker is expected to support.
func DefaultTestCases() []types.TestCase {
	return []types.TestCase{
		{Name: "1080p60 Progressive", Width: 1920, Height: 1080, FPS: 60, Progressive: true},
		{Name: "720p50 Progressive", Width: 1280, Height: 720, FPS: 50, Progressive: true},
		{Name: "1080i30 Interlaced", Width: 1920, Height: 1080, FPS: 30, Progressive: false},
		{Name: "4K UHD 30p Progressive", Width: 3840, Height: 2160, FPS: 30, Progressive: true},
		{Name: "720p24 Progressive", Width: 1280, Height: 720, FPS: 24, Progressive: true},
	}
}

// Registry holds the ordered list of test cases for a run
type Registry struct {
	config Config
	cases  []types.TestCase
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log       log.Logger
	SuiteFile string // Empty selects DefaultTestCases
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if cfg.SuiteFile == "" {
		r.cases = DefaultTestCases()
		cfg.Log.Debug("Registry using built-in test matrix", "len(cases)", len(r.cases))
		return r, nil
	}

	suite, err := loadSuite(cfg.SuiteFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load suite")
	}
	if err := suite.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid suite %s", cfg.SuiteFile)
	}
	r.cases = suite.Tests

	cfg.Log.Debug("Registry loaded", "suite", cfg.SuiteFile, "len(cases)", len(r.cases))
	return r, nil
}

// TestCases returns the test cases in execution order
func (r *Registry) TestCases() []types.TestCase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TestCase, len(r.cases))
	copy(out, r.cases)
	return out
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// Validate checks every case and rejects empty suites and duplicate names.
func (s *SuiteConfig) Validate() error {
	if len(s.Tests) == 0 {
		return errors.New("no test cases configured")
	}
	seen := make(map[string]struct{}, len(s.Tests))
	for i, tc := range s.Tests {
		if err := tc.Validate(); err != nil {
			return errors.Wrapf(err, "test case #%d", i+1)
		}
		if _, ok := seen[tc.Name]; ok {
			return errors.Errorf("test case [%s] is defined more than once", tc.Name)
		}
		seen[tc.Name] = struct{}{}
	}
	return nil
}

// loadSuite reads a YAML or TOML suite file, chosen by extension.
func loadSuite(path string) (*SuiteConfig, error) {
	log.Debug("Reading suite file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading suite file")
	}

	var cfg SuiteConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, errors.Wrap(err, "parsing toml suite file")
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "parsing yaml suite file")
		}
	}
	return &cfg, nil
}
