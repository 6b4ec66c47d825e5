// Package server serves a resolved training plan over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sgl-project/ome-mtl/internal/metrics"
	"github.com/sgl-project/ome-mtl/internal/params"
	"github.com/sgl-project/ome-mtl/pkg/logging"
	"github.com/sgl-project/ome-mtl/pkg/logging/ginlog"
)

// Server holds the plan loaded from params.json and its metrics.
type Server struct {
	config     *Config
	paramsPath string
	logger     logging.Interface
	zapLogger  *zap.Logger
	metrics    *metrics.PlanMetrics
	planOpts   []params.Option

	mu   sync.RWMutex
	plan *params.Params
}

// NewServer creates a server for the plan stored at paramsPath. Every load
// reads the file into a new Params built from planOpts, so the served plan
// always mirrors the file.
func NewServer(config *Config, paramsPath string, zapLogger *zap.Logger, logger logging.Interface, planOpts ...params.Option) (*Server, error) {
	plan, err := params.NewParams(planOpts...)
	if err != nil {
		return nil, err
	}
	return &Server{
		config:     config,
		paramsPath: paramsPath,
		logger:     logger,
		zapLogger:  zapLogger,
		metrics:    metrics.NewPlanMetrics(),
		planOpts:   planOpts,
		plan:       plan,
	}, nil
}

// Reload reads params.json again and refreshes the metrics. On failure the
// previously loaded plan keeps being served.
func (s *Server) Reload(ctx context.Context) error {
	next, err := params.NewParams(s.planOpts...)
	if err != nil {
		return err
	}
	if err := next.FromJSON(ctx, s.paramsPath); err != nil {
		return err
	}

	s.mu.Lock()
	s.plan = next
	s.metrics.Observe(next)
	s.mu.Unlock()

	s.logger.WithField("run_id", next.RunID).Info("Plan loaded")
	return nil
}

// SetupRoutes builds the gin engine.
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlog.RequestLogger(s.zapLogger, s.config.RequestLogger.Opts()...))

	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/params", s.getParams)
		v1.GET("/plan", s.getPlan)
		v1.POST("/reload", s.reload)
	}
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully. With
// Config.Watch set, the plan is reloaded whenever params.json changes.
func (s *Server) Run(ctx context.Context) error {
	if s.config.Watch {
		watcher, err := s.watchPlan()
		if err != nil {
			return err
		}
		go s.runWatcher(ctx, watcher)
	}

	srv := &http.Server{
		Addr:    s.config.Address,
		Handler: s.SetupRoutes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.config.Address).Info("Starting plan server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down plan server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthz(c *gin.Context) {
	s.mu.RLock()
	assigned := s.plan.ProblemAssigned
	s.mu.RUnlock()

	if !assigned {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no plan loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getParams(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c.JSON(http.StatusOK, s.plan)
}

func (s *Server) getPlan(c *gin.Context) {
	s.mu.RLock()
	summary := s.plan.Summary()
	s.mu.RUnlock()
	c.JSON(http.StatusOK, summary)
}

func (s *Server) reload(c *gin.Context) {
	if err := s.Reload(c.Request.Context()); err != nil {
		ginlog.GetRequestLogger(c).Error("Failed to reload plan", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload plan",
			"details": err.Error(),
		})
		return
	}
	s.getPlan(c)
}
