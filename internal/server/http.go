package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/async"
	"github.com/joseph-ayodele/po-extractor/internal/export"
	"github.com/joseph-ayodele/po-extractor/internal/pipeline"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
)

// Deps are the services the HTTP handlers call into.
type Deps struct {
	Registry   *profiles.Registry
	Reconciler *reconcile.Reconciler
	// Processor and Queue may be nil when no LLM is configured; upload routes then answer 503.
	Processor *pipeline.Processor
	Queue     async.Queue
	Jobs      repository.JobRepository
	Records   repository.RecordRepository
	Export    *export.Service
	DB        *repository.DB

	UploadDir   string
	MaxUploadMB int
	// BatchLimit caps concurrent documents in multi-file requests.
	BatchLimit int
}

// HTTPServer serves the REST API.
type HTTPServer struct {
	deps   Deps
	engine *gin.Engine
	logger *slog.Logger
}

func NewHTTPServer(deps Deps, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.MaxUploadMB <= 0 {
		deps.MaxUploadMB = constants.DefaultMaxUploadMB
	}
	if deps.UploadDir == "" {
		deps.UploadDir = "uploads"
	}
	if deps.BatchLimit <= 0 {
		deps.BatchLimit = 4
	}

	engine := gin.New()
	engine.MaxMultipartMemory = int64(deps.MaxUploadMB) << 20
	engine.Use(gin.Recovery(), requestID(), accessLog(logger))

	s := &HTTPServer{deps: deps, engine: engine, logger: logger}
	s.routes()
	return s
}

func (s *HTTPServer) routes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	api.GET("/customers", s.listCustomers)
	api.GET("/customer-ship-to/:customer", s.customerShipTo)

	api.POST("/process-purchase-order", s.processPurchaseOrder)
	api.POST("/process-purchase-orders", s.processPurchaseOrders)
	api.POST("/process-default-purchase-order", s.processDefaultPurchaseOrder)
	api.POST("/reconcile", s.reconcile)

	api.POST("/jobs", s.submitJob)
	api.GET("/jobs/:id", s.getJob)

	api.GET("/records/export.xlsx", s.exportRecords)
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http.listen", "addr", addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http.shutdown")
	return srv.Shutdown(shutdownCtx)
}

func (s *HTTPServer) health(c *gin.Context) {
	if s.deps.DB != nil {
		if err := s.deps.DB.HealthCheck(c.Request.Context(), 2*time.Second, s.logger); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
