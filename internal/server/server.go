// Package server exposes provisioning over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
	"github.com/xkilldash9x/autoreg-cli/internal/monitoring"
	"github.com/xkilldash9x/autoreg-cli/internal/provision"
	"github.com/xkilldash9x/autoreg-cli/internal/store"
)

// Provisioner runs one attempt. *provision.Runner implements it.
type Provisioner interface {
	Run(ctx context.Context) (provision.Result, error)
}

// Dependencies are the collaborators of a Server. Repository and Metrics are
// optional.
type Dependencies struct {
	Config      config.ServerConfig
	Provisioner Provisioner
	Repository  store.Repository
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	cfg    config.ServerConfig
	prov   Provisioner
	repo   store.Repository
	logger *zap.Logger
	engine *gin.Engine
}

// New builds the router.
func New(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    deps.Config,
		prov:   deps.Provisioner,
		repo:   deps.Repository,
		logger: logger.Named("server"),
	}
	s.engine = s.routes(deps.Metrics)
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes(metrics *monitoring.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	if metrics != nil {
		router.Use(metrics.HTTPMetrics())
	}

	corsConfig := gincors.Config{
		AllowOrigins:  s.cfg.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowOrigins = nil
			break
		}
	}
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowCredentials = true
	}
	router.Use(gincors.New(corsConfig))

	api := router.Group("/api")
	api.POST("/create-account", s.createAccount)
	api.GET("/status", s.status)
	api.GET("/healthcheck", s.healthcheck)
	api.GET("/cors-test", s.corsTest)
	if s.repo != nil && s.cfg.ExposeResults {
		api.GET("/results", s.listResults)
		api.GET("/results/:id", s.getResult)
	}

	if metrics != nil && s.cfg.Metrics {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return router
}

func (s *Server) createAccount(c *gin.Context) {
	res, err := s.prov.Run(c.Request.Context())
	if err != nil {
		s.logger.Warn("Provisioning request not served", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, provision.Failed(err.Error()))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "online"})
}

func (s *Server) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) corsTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "CORS is configured"})
}

func (s *Server) listResults(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	records, err := s.repo.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list results", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list results"})
		return
	}
	out := make([]store.Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Redacted())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getResult(c *gin.Context) {
	rec, err := s.repo.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
	case errors.Is(err, store.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result id"})
	case err != nil:
		s.logger.Error("Failed to load result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
	default:
		c.JSON(http.StatusOK, rec.Redacted())
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("address", s.cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		s.logger.Info("Shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
			return err
		}
		s.logger.Info("HTTP server stopped")
		return nil
	})

	return group.Wait()
}
