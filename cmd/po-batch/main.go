package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/po-extractor/internal/app"
	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/export"
	"github.com/joseph-ayodele/po-extractor/internal/ingest"
	"github.com/joseph-ayodele/po-extractor/internal/pipeline"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir      = flag.String("dir", "", "directory of purchase-order PDFs (required)")
		customer = flag.String("customer", profiles.DefaultUploadCode, "customer code for every file")
		byFolder = flag.Bool("by-folder", false, "take the customer code from each file's top-level folder under --dir")
		out      = flag.String("out", "", "output XLSX path (default: <dir>/purchase-orders.xlsx)")
		workers  = flag.Int("workers", 0, "concurrent documents (default QUEUE_WORKERS)")
		hidden   = flag.Bool("hidden", false, "include hidden files and folders")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(*dir, "purchase-orders.xlsx")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		printError("Warning: loading .env: %v\n", err)
	}
	cfg := common.LoadConfig()
	logger := app.NewLogger(os.Stderr, cfg.Log)
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}
	if *workers <= 0 {
		*workers = cfg.Queue.Workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		printError("Error: opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	reg, err := app.Registry(cfg.Reconcile, logger)
	if err != nil {
		printError("Error: loading profiles: %v\n", err)
		os.Exit(1)
	}
	proc, err := app.Processor(ctx, cfg, db, reg, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}

	files, stats, err := ingest.ScanDirectory(ctx, *dir, !*hidden, logger)
	if err != nil {
		printError("Error: scanning %s: %v\n", *dir, err)
		os.Exit(1)
	}

	var uploads []pipeline.Upload
	for _, f := range files {
		if f.DuplicateOf != "" {
			continue
		}
		code := *customer
		if *byFolder {
			c, ok := ingest.CustomerFor(*dir, f.Path)
			if !ok {
				logger.Warn("no customer folder, skipping", "path", f.Path)
				continue
			}
			code = c
		}
		uploads = append(uploads, pipeline.Upload{Customer: code, Path: f.Path, ContentHash: f.Hash})
	}

	results := proc.ProcessBatch(ctx, uploads, *workers)

	recordsRepo := repository.NewRecordRepository(db, logger)
	var (
		rows     []repository.StoredRecord
		failures int
	)
	for _, r := range results {
		if r.Err != nil {
			failures++
			printError("FAILED %s: %s\n", r.Filename, r.Error.Message)
			continue
		}
		stored, err := recordsRepo.ListByJob(ctx, r.Result.JobID)
		if err != nil {
			printError("Error: loading records for %s: %v\n", r.Filename, err)
			os.Exit(1)
		}
		rows = append(rows, stored...)
	}

	xlsx, err := export.WriteXLSX(rows)
	if err != nil {
		printError("Error: building workbook: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		printError("Error: writing %s: %v\n", *out, err)
		os.Exit(1)
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- PDFs found: %d (%d duplicates skipped)\n", stats.Matched, stats.Duplicates)
	fmt.Printf("- Documents processed: %d\n", len(results)-failures)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Records: %d\n", len(rows))
	fmt.Printf("- Output: %s\n", *out)
	if failures > 0 {
		os.Exit(3)
	}
}
