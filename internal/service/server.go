// File: internal/service/server.go
// Description: The HTTP trigger/status surface. POST /evolve starts a cycle
// (fire-and-forget, 202 with the cycle id), GET /status reports the current
// CycleState and the most recent CommitRecord.

package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
	"github.com/xkilldash9x/gardener-cli/internal/config"
	"github.com/xkilldash9x/gardener-cli/internal/coordinator"
)

// Handlers contains the HTTP handlers for the evolution service.
type Handlers struct {
	logger *zap.Logger
	coord  *coordinator.Coordinator
}

// NewHandlers creates handlers around the coordinator.
func NewHandlers(logger *zap.Logger, coord *coordinator.Coordinator) *Handlers {
	return &Handlers{
		logger: logger.Named("service"),
		coord:  coord,
	}
}

// Router builds the gin engine with all routes registered.
func (h *Handlers) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/evolve", h.handleEvolve)
	r.GET("/status", h.handleStatus)
	r.GET("/healthz", h.handleHealthz)
	return r
}

func (h *Handlers) handleEvolve(c *gin.Context) {
	var ov schemas.Overrides
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&ov); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	cycleID, state, err := h.coord.Trigger(ov)
	switch {
	case errors.Is(err, coordinator.ErrCycleBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": state})
		return
	case errors.Is(err, coordinator.ErrCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "state": state})
		return
	case err != nil:
		h.logger.Error("Trigger failed.", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Cycle triggered via HTTP.", zap.String("cycle_id", cycleID), zap.Bool("dry_run", ov.DryRun))
	c.JSON(http.StatusAccepted, gin.H{"cycle_id": cycleID, "state": state})
}

func (h *Handlers) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Status())
}

func (h *Handlers) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Server wraps the http.Server lifecycle.
type Server struct {
	logger *zap.Logger
	srv    *http.Server
	cfg    config.ServerConfig
}

// NewServer builds the HTTP server for the configured listen address.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, handlers *Handlers) *Server {
	return &Server{
		logger: logger.Named("server"),
		cfg:    cfg,
		srv: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: handlers.Router(),
		},
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP service listening.", zap.String("addr", s.cfg.ListenAddr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
