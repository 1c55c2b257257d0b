package service

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// HealthzServer answers liveness checks while the harness runs. It reports
// 503 once the run is marked finished.
type HealthzServer struct {
	log      log.Logger
	server   *http.Server
	listener net.Listener
	finished atomic.Bool
}

func NewHealthzServer(logger log.Logger) *HealthzServer {
	return &HealthzServer{log: logger}
}

// Start binds addr and serves in the background.
func (h *HealthzServer) Start(addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return h.serve(addr, c.Handler(hdlr))
}

func (h *HealthzServer) serve(addr string, handler http.Handler) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.listener = l
	h.server = &http.Server{Handler: handler}
	go func() {
		_ = h.server.Serve(l)
	}()
	return nil
}

// Addr is the bound address, or nil before Start.
func (h *HealthzServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// MarkFinished flips the health check to unavailable.
func (h *HealthzServer) MarkFinished() {
	h.finished.Store(true)
}

func (h *HealthzServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	if h.finished.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("FINISHED")) //nolint:errcheck
		return
	}
	w.Write([]byte("OK")) //nolint:errcheck
}
