package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/the-alphabet-cartel/ash-nlp/internal/logger"
	"github.com/the-alphabet-cartel/ash-nlp/internal/telemetry"
)

// Default timeout values.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
	JWTSecret    string
}

// Server wraps the HTTP server and its router.
type Server struct {
	httpServer *http.Server
	log        logger.Logger
}

// NewServer builds the router and HTTP server.
func NewServer(handler *Handler, cfg ServerConfig, tp *telemetry.Provider, log logger.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	setupRoutes(router, handler, cfg, tp)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = defaultReadTimeout
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		log: log,
	}
}

func setupRoutes(router *gin.Engine, handler *Handler, cfg ServerConfig, tp *telemetry.Provider) {
	// Health and readiness stay unauthenticated for orchestration probes.
	router.GET("/health", handler.HealthCheck)
	router.GET("/ready", handler.ReadyCheck)
	if tp != nil {
		router.GET("/metrics", gin.WrapH(tp.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg.JWTSecret))
	{
		analyze := v1.Group("/analyze")
		{
			analyze.POST("", handler.Analyze)            // POST /api/v1/analyze
			analyze.POST("/batch", handler.AnalyzeBatch) // POST /api/v1/analyze/batch
		}

		v1.GET("/patterns", handler.ListPatterns)        // GET  /api/v1/patterns
		v1.POST("/config/reload", handler.ReloadConfig)  // POST /api/v1/config/reload
		v1.GET("/stats", handler.Stats)                  // GET  /api/v1/stats

		history := v1.Group("/history")
		{
			history.GET("", handler.ListHistory)              // GET  /api/v1/history
			history.POST("/:id/review", handler.MarkReviewed) // POST /api/v1/history/:id/review
		}

		feedback := v1.Group("/feedback")
		{
			feedback.POST("", handler.CreateFeedback)                 // POST /api/v1/feedback
			feedback.GET("/adjustments", handler.PendingAdjustments) // GET  /api/v1/feedback/adjustments
		}
	}
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
