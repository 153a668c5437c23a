// Package admin serves /metrics and /healthz on a side-channel HTTP
// listener, using a gin.Engine for routing.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scalable-server/internal/logger"
)

// Server is a minimal HTTP side channel; it never touches the benchmarked
// listen socket or client connections.
type Server struct {
	httpSrv *http.Server
	log     *logger.Logger
}

// New builds the gin engine exposing /healthz and a Prometheus /metrics
// handler backed by reg.
func New(addr string, reg *prometheus.Registry, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return &Server{
		httpSrv: &http.Server{Addr: addr, Handler: engine, ErrorLog: log.GetStdLogger("admin: ", 0)},
		log:     log,
	}
}

// Start runs the listener in a background goroutine. Bind failures are
// logged, not fatal: the admin side channel is a diagnostic convenience, not
// part of the benchmarked server loop.
func (s *Server) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("admin: listen %s: %v", s.httpSrv.Addr, err)
		}
	}()
}

// Shutdown gracefully stops the admin listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
