// Package service runs the harness's auxiliary HTTP endpoints: a health
// check and the Prometheus metrics exporter.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"

	"github.com/html2ndi/ndi-acceptor/metrics"
)

// Config selects which endpoints to run.
type Config struct {
	Log         log.Logger
	Metrics     opmetrics.CLIConfig
	HealthzAddr string // empty disables the health check
}

type Service struct {
	cfg     Config
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	s := &Service{cfg: cfg}
	if cfg.HealthzAddr != "" {
		s.Healthz = NewHealthzServer(cfg.Log)
	}
	if cfg.Metrics.Enabled {
		s.Metrics = NewMetricsServer(nil)
	}
	return s
}

// Start brings up every configured endpoint. Failures are logged and
// counted; the harness runs without them.
func (s *Service) Start() {
	s.cfg.Log.Info("service starting")

	if s.Healthz != nil {
		s.cfg.Log.Info("starting healthz server", "addr", s.cfg.HealthzAddr)
		if err := s.Healthz.Start(s.cfg.HealthzAddr); err != nil {
			s.cfg.Log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("healthz_start", err)
			s.Healthz = nil
		}
	}

	if s.Metrics != nil {
		addr := net.JoinHostPort(s.cfg.Metrics.ListenAddr, strconv.Itoa(s.cfg.Metrics.ListenPort))
		s.cfg.Log.Info("starting metrics server", "addr", addr)
		if err := s.Metrics.Start(addr); err != nil {
			s.cfg.Log.Error("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("metrics_start", err)
			s.Metrics = nil
		}
	}

	s.cfg.Log.Info("service started")
}

// MarkFinished tells health checks the run is over.
func (s *Service) MarkFinished() {
	if s.Healthz != nil {
		s.Healthz.MarkFinished()
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.cfg.Log.Info("service shutting down")
	var errs []error
	if s.Healthz != nil {
		if err := s.Healthz.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("healthz: %w", err))
		}
		s.cfg.Log.Info("healthz stopped")
	}
	if s.Metrics != nil {
		if err := s.Metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
		s.cfg.Log.Info("metrics stopped")
	}
	s.cfg.Log.Info("service stopped")
	return errors.Join(errs...)
}
