package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/po-extractor/internal/app"
	"github.com/joseph-ayodele/po-extractor/internal/async"
	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/export"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
	"github.com/joseph-ayodele/po-extractor/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := common.LoadConfig()
	logger := app.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)
	if cfg.Database.DSN == "" {
		logger.Warn("DB_URL not set, using in-memory SQLite; data is lost on exit")
	}

	reg, err := app.Registry(cfg.Reconcile, logger)
	if err != nil {
		logger.Error("failed to load customer profiles", "error", err)
		os.Exit(1)
	}
	reconciler := app.Reconciler(cfg.Reconcile, logger)
	records := repository.NewRecordRepository(db, logger)

	deps := server.Deps{
		Registry:    reg,
		Reconciler:  reconciler,
		Jobs:        repository.NewJobRepository(db, logger),
		Records:     records,
		Export:      export.NewService(records, logger),
		DB:          db,
		UploadDir:   cfg.Server.UploadDir,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		BatchLimit:  cfg.Queue.Workers,
	}

	proc, err := app.Processor(ctx, cfg, db, reg, logger)
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		logger.Warn("LLM not configured, document upload endpoints are disabled", "error", err)
	case err != nil:
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	default:
		queue := async.NewProcessorQueue(proc, logger,
			async.WithWorkers(cfg.Queue.Workers),
			async.WithQueueSize(cfg.Queue.Size),
			async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
		)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			queue.Shutdown(shutdownCtx)
		}()
		deps.Processor, deps.Queue = proc, queue

		if cfg.Queue.InboxDir != "" {
			go func() {
				if err := app.RunInbox(ctx, cfg.Queue, proc, queue, logger); err != nil {
					logger.Error("inbox watcher stopped", "dir", cfg.Queue.InboxDir, "error", err)
				}
			}()
		}
	}

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		grpcServer := server.NewGRPCServer(server.NewReconcileService(reg, reconciler, cfg.Queue.Workers, logger), logger)
		go func() {
			if err := grpcServer.Serve(ctx, lis); err != nil {
				logger.Error("grpc server stopped", "error", err)
				stop()
			}
		}()
	}

	logger.Info("po-extractor starting", "http", cfg.Server.HTTPAddr, "grpc", cfg.Server.GRPCAddr, "customers", reg.Codes())
	if err := server.NewHTTPServer(deps, logger).Run(ctx, cfg.Server.HTTPAddr); err != nil {
		logger.Error("http server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("po-extractor stopped")
}
