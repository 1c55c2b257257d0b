// Package fakeworker is a stand-in for the html2ndi worker. It accepts the
// worker's launch contract and serves a /status document describing the
// configuration it was started with, so the harness can be exercised
// without a renderer or an NDI runtime. Extra flags make it misbehave in the
// ways the harness has to cope with.
package fakeworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// Status mirrors the worker's GET /status document.
type Status struct {
	URL            string  `json:"url"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            int     `json:"fps"`
	Progressive    bool    `json:"progressive"`
	ActualFPS      float64 `json:"actual_fps"`
	NDIName        string  `json:"ndi_name"`
	NDIConnections int     `json:"ndi_connections"`
	Running        bool    `json:"running"`
}

// Options configures a fake worker run.
type Options struct {
	URL        string
	Width      int
	Height     int
	FPS        int
	Interlaced bool
	NDIName    string
	HTTPHost   string
	HTTPPort   int
	CachePath  string

	// ReportProgressive overrides the progressive flag reported on /status.
	ReportProgressive *bool
	// ReportFPS overrides the fps reported on /status when positive.
	ReportFPS int
	// NeverReady keeps the status port closed for the whole run.
	NeverReady bool
	// StartupDelay postpones opening the status port.
	StartupDelay time.Duration
	// ExitAfter makes the worker exit on its own once elapsed.
	ExitAfter time.Duration
}

// Status builds the document served on /status.
func (o Options) Status() Status {
	progressive := !o.Interlaced
	if o.ReportProgressive != nil {
		progressive = *o.ReportProgressive
	}
	fps := o.FPS
	if o.ReportFPS > 0 {
		fps = o.ReportFPS
	}
	return Status{
		URL:         o.URL,
		Width:       o.Width,
		Height:      o.Height,
		FPS:         fps,
		Progressive: progressive,
		ActualFPS:   float64(fps),
		NDIName:     o.NDIName,
		Running:     true,
	}
}

// NewHandler returns the worker's HTTP API.
func NewHandler(status Status) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

// Run serves the status API until ctx is done.
func Run(ctx context.Context, logger log.Logger, opts Options) error {
	if opts.CachePath != "" {
		if err := os.MkdirAll(opts.CachePath, 0o755); err != nil {
			return fmt.Errorf("failed to create cache path: %w", err)
		}
	}
	if opts.ExitAfter > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ExitAfter)
		defer cancel()
	}

	logger.Info("Fake worker starting",
		"resolution", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"fps", opts.FPS,
		"interlaced", opts.Interlaced,
		"ndi_name", opts.NDIName)

	if opts.NeverReady {
		logger.Warn("Status interface disabled")
		<-ctx.Done()
		return nil
	}

	select {
	case <-time.After(opts.StartupDelay):
	case <-ctx.Done():
		return nil
	}

	addr := net.JoinHostPort(opts.HTTPHost, strconv.Itoa(opts.HTTPPort))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:           NewHandler(opts.Status()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("HTTP server listening", "addr", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		logger.Info("Fake worker shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// NewApp returns the fake worker command line application.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "fakeworker"
	app.Usage = "Stand-in for the html2ndi worker"
	app.HideHelpCommand = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "url", Value: "about:blank"},
		&cli.IntFlag{Name: "width", Value: 1920},
		&cli.IntFlag{Name: "height", Value: 1080},
		&cli.IntFlag{Name: "fps", Value: 60},
		&cli.BoolFlag{Name: "interlaced"},
		&cli.StringFlag{Name: "ndi-name", Value: "HTML2NDI"},
		&cli.StringFlag{Name: "http-host", Value: "127.0.0.1"},
		&cli.IntFlag{Name: "http-port", Value: 8080},
		&cli.StringFlag{Name: "cache-path"},
		&cli.StringFlag{Name: "fake-progressive", Usage: "Report this progressive value instead of the configured one"},
		&cli.IntFlag{Name: "fake-fps", Usage: "Report this fps instead of the configured one"},
		&cli.BoolFlag{Name: "fake-never-ready", Usage: "Never open the status port"},
		&cli.BoolFlag{Name: "fake-ignore-term", Usage: "Ignore SIGTERM so the supervisor has to kill the process"},
		&cli.DurationFlag{Name: "fake-startup-delay", Usage: "Delay before the status port opens"},
		&cli.DurationFlag{Name: "fake-exit-after", Usage: "Exit on its own after this long"},
	}
	app.Action = func(ctx *cli.Context) error {
		opts := Options{
			URL:          ctx.String("url"),
			Width:        ctx.Int("width"),
			Height:       ctx.Int("height"),
			FPS:          ctx.Int("fps"),
			Interlaced:   ctx.Bool("interlaced"),
			NDIName:      ctx.String("ndi-name"),
			HTTPHost:     ctx.String("http-host"),
			HTTPPort:     ctx.Int("http-port"),
			CachePath:    ctx.String("cache-path"),
			ReportFPS:    ctx.Int("fake-fps"),
			NeverReady:   ctx.Bool("fake-never-ready"),
			StartupDelay: ctx.Duration("fake-startup-delay"),
			ExitAfter:    ctx.Duration("fake-exit-after"),
		}
		if v := ctx.String("fake-progressive"); v != "" {
			p, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid --fake-progressive value %q: %w", v, err)
			}
			opts.ReportProgressive = &p
		}

		signals := []os.Signal{os.Interrupt, syscall.SIGTERM}
		if ctx.Bool("fake-ignore-term") {
			signal.Ignore(syscall.SIGTERM)
			signals = []os.Signal{os.Interrupt}
		}
		runCtx, stop := signal.NotifyContext(ctx.Context, signals...)
		defer stop()

		logger := log.NewLogger(log.NewTerminalHandler(os.Stdout, false))
		return Run(runCtx, logger, opts)
	}
	return app
}

// Main runs the fake worker with args (without the program name) and returns
// the process exit code.
func Main(args []string) int {
	app := NewApp()
	if err := app.RunContext(context.Background(), append([]string{app.Name}, args...)); err != nil {
		fmt.Fprintln(os.Stderr, "fakeworker:", err)
		return 1
	}
	return 0
}
