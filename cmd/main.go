package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	acceptor "github.com/html2ndi/ndi-acceptor"
	"github.com/html2ndi/ndi-acceptor/flags"
	"github.com/html2ndi/ndi-acceptor/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "ndi-acceptor"
	app.Usage = "End-to-end acceptance tests for the HTML to NDI worker"
	app.Description = "ndi-acceptor launches the worker once per configuration and checks the stream it emits"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		switch {
		case acceptor.IsInterruptedError(err):
			log.Warn("Run interrupted", "err", err)
		case acceptor.IsTestFailureError(err):
			log.Warn("Test cases failed", "err", err)
		case acceptor.IsRuntimeError(err):
			log.Error("Harness could not run the suite", "err", err)
		default:
			log.Error("Unclassified error", "err", err)
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), acceptor.ExitCode(err)))
	}

	ctx := ctxinterrupt.WithSignalWaiterMain(context.Background())
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := acceptor.NewConfig(ctx, log)
	if err != nil {
		return nil, acceptor.NewRuntimeError("configuration", err)
	}
	cfg.Log.Debug("Config", "config", cfg)

	shutdownTelemetry := func() {}
	if cfg.Telemetry {
		_, shutdownTelemetry, err = telemetry.SetupOpenTelemetry(
			ctx.Context,
			otelconfig.WithServiceName(ctx.App.Name),
			otelconfig.WithServiceVersion(ctx.App.Version),
		)
		if err != nil {
			return nil, acceptor.NewRuntimeError("telemetry setup", err)
		}
	}

	svc := service.New(service.Config{
		Log:         log,
		Metrics:     cfg.Metrics,
		HealthzAddr: cfg.HealthzAddr,
	})
	svc.Start()

	a, err := acceptor.New(cfg, Version, closeApp, acceptor.Options{
		Out:    os.Stdout,
		Colors: logCfg.Color,
	})
	if err != nil {
		shutdownTelemetry()
		_ = svc.Shutdown(context.Background())
		return nil, acceptor.NewRuntimeError("setup", err)
	}

	return &lifecycle{Acceptor: a, svc: svc, shutdownTelemetry: shutdownTelemetry}, nil
}

// lifecycle ties the auxiliary service and telemetry to the acceptor lifecycle.
type lifecycle struct {
	*acceptor.Acceptor
	svc               *service.Service
	shutdownTelemetry func()
}

func (a *lifecycle) Start(ctx context.Context) error {
	err := a.Acceptor.Start(ctx)
	a.svc.MarkFinished()
	if err != nil {
		// Stop is skipped when Start fails, so release everything here.
		a.release()
	}
	return err
}

func (a *lifecycle) Stop(ctx context.Context) error {
	err := a.Acceptor.Stop(ctx)
	a.release()
	return err
}

func (a *lifecycle) release() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.svc.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down service", "err", err)
	}
	a.shutdownTelemetry()
}
