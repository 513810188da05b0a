// Package server exposes the administrative HTTP surface: catchup and
// reprocess triggers, pipeline status, synchronous message processing,
// health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Yuanja/watch-tracker-sub000/internal/common"
	"github.com/Yuanja/watch-tracker-sub000/internal/engine"
)

// Config holds HTTP server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
}

// Server wires the pipeline engine to HTTP handlers.
type Server struct {
	engine *engine.Engine
	pool   *engine.Pool
	http   *http.Server
	router *gin.Engine
}

// New creates the admin server.
func New(cfg Config, eng *engine.Engine, pool *engine.Pool) *Server {
	cfg.ApplyDefaults()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		engine: eng,
		pool:   pool,
		router: router,
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/messages/:id/process", s.handleProcessMessage)

	admin := s.router.Group("/admin")
	admin.POST("/catchup", s.handleCatchup)
	admin.GET("/status", s.handleStatus)
	admin.POST("/reprocess", s.handleReprocess)
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCatchup schedules a backlog sweep on the worker pool. The sweep's
// single-flight guard reports a conflict when one is already running.
func (s *Server) handleCatchup(c *gin.Context) {
	if s.engine.CatchupRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "catchup already running"})
		return
	}

	s.pool.Submit(func() {
		if _, err := s.engine.Catchup(context.Background()); err != nil {
			if errors.Is(err, common.ErrCatchupRunning) {
				slog.Warn("Catchup already running, skipping trigger")
				return
			}
			slog.Error("Catchup failed", "error", err)
		}
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.engine.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"catchup_running":      status.CatchupRunning,
		"unprocessed_count":    status.UnprocessedCount,
		"total_messages":       status.TotalMessages,
		"pending_review_count": status.PendingReviewCount,
	})
}

func (s *Server) handleReprocess(c *gin.Context) {
	stats, err := s.engine.ResetExtractions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"listings_deleted":     stats.ListingsDeleted,
		"review_items_deleted": stats.ReviewItemsDeleted,
		"messages_reset":       stats.MessagesReset,
	})
}

// handleProcessMessage runs the pipeline synchronously for one message and
// returns the created listings.
func (s *Server) handleProcessMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	listings, err := s.engine.ProcessMessage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
