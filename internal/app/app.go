// Package app wires configuration into the services the commands run.
package app

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/po-extractor/internal/pipeline"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
	"github.com/joseph-ayodele/po-extractor/internal/storage"
	"github.com/joseph-ayodele/po-extractor/internal/textextract"
)

// NewLogger builds the slog logger described by cfg.
func NewLogger(w io.Writer, cfg common.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// OpenDatabase opens the configured database and applies the schema.
func OpenDatabase(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repository.DB, error) {
	db, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close(logger)
		return nil, err
	}
	return db, nil
}

// Registry loads the builtin customer profiles plus the optional overlay file.
func Registry(cfg common.ReconcileConfig, logger *slog.Logger) (*profiles.Registry, error) {
	return profiles.Load(cfg.ProfilesFile, logger)
}

func Reconciler(cfg common.ReconcileConfig, logger *slog.Logger) *reconcile.Reconciler {
	return reconcile.New(reconcile.Options{
		QuantityPrecision: cfg.QuantityPrecision,
		MatchThreshold:    cfg.MatchThreshold,
		KeepAddressOnMiss: cfg.KeepAddressOnMiss,
	}, logger)
}

// Archiver returns the upload archive, or nil when none is configured.
func Archiver(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (storage.Archiver, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	c, err := storage.NewR2Client(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Processor wires the full document pipeline against db.
func Processor(ctx context.Context, cfg *common.Config, db *repository.DB, reg *profiles.Registry, logger *slog.Logger) (*pipeline.Processor, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	archive, err := Archiver(ctx, cfg.Archive, logger)
	if err != nil {
		return nil, err
	}
	llmClient := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		RatePerSec:  cfg.LLM.RatePerSec,
	}, logger)

	return pipeline.NewProcessor(
		logger,
		reg,
		textextract.NewPDFExtractor(logger),
		llmClient,
		Reconciler(cfg.Reconcile, logger),
		repository.NewJobRepository(db, logger),
		repository.NewRecordRepository(db, logger),
		archive,
	), nil
}
