// Package api is the thin HTTP transport wrapping the decision pipeline,
// adapted from the teacher's internal/api.Server: gin router, health
// endpoint, graceful shutdown. It is explicitly NOT part of the core
// (spec §1); it only translates HTTP requests into domain.PipelineRequest
// and domain.PipelineResult into HTTP responses, and fires the append-only
// audit write after the response is already formed.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/genomax/protocol-engine/internal/catalogstore"
	"github.com/genomax/protocol-engine/internal/domain"
	"github.com/genomax/protocol-engine/internal/middleware"
	"github.com/genomax/protocol-engine/internal/pipeline"
)

// AuditWriter persists append-only audit rows. Satisfied by
// *repository.AuditRepository; a nil AuditWriter disables persistence
// (e.g. when no database is configured), which never affects the response.
type AuditWriter interface {
	Create(ctx context.Context, record domain.AuditRecord) error
}

// Server wires the gin HTTP router to the decision pipeline.
type Server struct {
	cfg      *domain.Config
	log      *logrus.Logger
	router   *gin.Engine
	server   *http.Server
	pipeline *pipeline.Pipeline
	catalog  *catalogstore.Store
	audit    AuditWriter
}

// NewServer builds a Server. audit may be nil.
func NewServer(cfg *domain.Config, log *logrus.Logger, pl *pipeline.Pipeline, catalog *catalogstore.Store, audit AuditWriter) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.RateLimit(20, 40))
	router.Use(middleware.RequestTimeout(cfg.Server.DefaultDeadline))

	s := &Server{cfg: cfg, log: log, router: router, pipeline: pl, catalog: catalog, audit: audit}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/protocol", s.handleBuildProtocol)
	}
}

// handleHealth reports process health, including whether a catalog
// snapshot is currently loaded. A request observing no catalog is a
// CATALOG_UNAVAILABLE condition, not a 200.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.catalog.Snapshot(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  "catalog unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleBuildProtocol is the sole business endpoint: decode the inbound
// request, run the pipeline, encode the outbound response per spec §6.
func (s *Server) handleBuildProtocol(c *gin.Context) {
	var req domain.PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"kind":    domain.ErrInvalidInput,
			"message": fmt.Sprintf("malformed request body: %v", err),
		})
		return
	}

	ctx := c.Request.Context()
	if req.DeadlineMs != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*req.DeadlineMs)*time.Millisecond)
		defer cancel()
	}

	result, err := s.pipeline.Run(ctx, req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)

	if s.audit != nil {
		go s.persistAudit(result)
	}
}

// persistAudit writes every stage's audit row in the background. Failure
// to persist is logged but never surfaces to the already-returned
// response, per §5's fire-and-forget rule.
func (s *Server) persistAudit(result *domain.PipelineResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, record := range pipeline.AuditRecords(result) {
		if err := s.audit.Create(ctx, record); err != nil {
			s.log.WithFields(logrus.Fields{
				"run_id": record.RunID, "stage": record.Stage, "error": err,
			}).Warn("audit write failed")
		}
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	pipeErr, ok := err.(*domain.PipelineError)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "INTERNAL", "message": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch pipeErr.Kind {
	case domain.ErrInvalidInput:
		status = http.StatusBadRequest
	case domain.ErrCatalogUnavailable:
		status = http.StatusServiceUnavailable
	case domain.ErrDeadlineExceeded:
		status = http.StatusRequestTimeout
	case domain.ErrInternalInvariant, domain.ErrRulesetMisconfig:
		status = http.StatusInternalServerError
	}
	c.JSON(status, pipeErr)
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully, mirroring the teacher's api.Server.Start.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
