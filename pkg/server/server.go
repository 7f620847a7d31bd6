package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gweizero/engine/pkg/logger/log"
)

// Server wraps a gin engine with the shared middleware stack, health and
// metrics endpoints, and graceful shutdown.
type Server struct {
	name   string
	port   int
	router *gin.Engine
}

// New creates a new Server instance. Route registration happens through
// Router() before Run.
func New(name string, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())

	srv := &Server{
		name:   name,
		port:   port,
		router: router,
	}

	router.GET("/health", srv.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return srv
}

// Router exposes the underlying engine for route registration.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Infof("%s listening on %s", s.name, addr)

	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: the SSE stream holds its response open.
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Infof("Shutting down %s...", s.name)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// healthCheck returns the health status
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// loggerMiddleware returns a gin middleware for request logging
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if path != "/health" && path != "/metrics" {
			log.Infof("%s %s %d %v", c.Request.Method, path, status, latency)
		}
	}
}
