package service

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// MetricsServer exposes a Prometheus registry on /metrics.
type MetricsServer struct {
	gatherer prometheus.Gatherer
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer serves gatherer, or the default registry when nil.
func NewMetricsServer(gatherer prometheus.Gatherer) *MetricsServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &MetricsServer{gatherer: gatherer}
}

// Start binds addr and serves in the background.
func (m *MetricsServer) Start(addr string) error {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	m.listener = l
	m.server = &http.Server{Handler: c.Handler(hdlr)}
	go func() {
		_ = m.server.Serve(l)
	}()
	return nil
}

// Addr is the bound address, or nil before Start.
func (m *MetricsServer) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
