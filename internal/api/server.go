// Package api serves the analysis history and alerts over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ironsheep/lake-growth-mcp/internal/config"
	"github.com/ironsheep/lake-growth-mcp/internal/log"
	"github.com/ironsheep/lake-growth-mcp/internal/store"
)

// History is the part of the store the API reads and updates.
type History interface {
	GetAnalysis(ctx context.Context, id string) (*store.Analysis, error)
	ListAnalyses(ctx context.Context, limit int) ([]store.Analysis, error)
	ListAlerts(ctx context.Context, status string) ([]store.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string) (*store.Alert, error)
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg     *config.Config
	history History
	engine  *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg *config.Config, history History) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(corsMiddleware())

	if cfg.API.BearerToken != "" {
		engine.Use(bearerAuthMiddleware(cfg.API.BearerToken))
	}

	s := &Server{cfg: cfg, history: history, engine: engine}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:     s.cfg.ListenAddr(),
		Handler:  s.engine,
		ErrorLog: zap.NewStdLog(log.GetZapLogger()),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	{
		api.GET("/analyses", s.handleListAnalyses)
		api.GET("/analyses/:id", s.handleGetAnalysis)
		api.GET("/alerts", s.handleListAlerts)
		api.POST("/alerts/:id/ack", s.handleAcknowledgeAlert)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// GET /api/analyses?limit=
func (s *Server) handleListAnalyses(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	analyses, err := s.history.ListAnalyses(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": analyses,
		"meta": gin.H{"count": len(analyses), "limit": limit},
	})
}

// GET /api/analyses/:id
func (s *Server) handleGetAnalysis(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	analysis, err := s.history.GetAnalysis(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": analysis})
}

// GET /api/alerts?status=
func (s *Server) handleListAlerts(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", store.StatusOpen, store.StatusAcknowledged:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or acknowledged"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	alerts, err := s.history.ListAlerts(ctx, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": alerts,
		"meta": gin.H{"count": len(alerts)},
	})
}

// POST /api/alerts/:id/ack
func (s *Server) handleAcknowledgeAlert(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	alert, err := s.history.AcknowledgeAlert(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}
