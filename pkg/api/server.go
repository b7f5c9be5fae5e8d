// Package api provides the HTTP surface: the streaming solution endpoint,
// session inspection, and health.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
	"github.com/satishdosapati/solutionbuilder-core/pkg/orchestrator"
	"github.com/satishdosapati/solutionbuilder-core/pkg/pool"
	"github.com/satishdosapati/solutionbuilder-core/pkg/session"
	"github.com/satishdosapati/solutionbuilder-core/pkg/version"
)

// Runner executes one orchestrated request against an event stream. The
// orchestrator implements it; tests substitute stubs.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request, enc *events.StreamEncoder) error
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	runner   Runner
	sessions *session.Store
	pools    *pool.Manager

	logger *slog.Logger
}

// NewServer wires routes onto a fresh gin engine.
func NewServer(runner Runner, sessions *session.Store, pools *pool.Manager) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router:   router,
		runner:   runner,
		sessions: sessions,
		pools:    pools,
		logger:   slog.Default(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.POST("/solutions/stream", s.handleSolutionStream)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening", "addr", addr, "version", version.Full())

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request in the structured-log style used
// everywhere else.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
