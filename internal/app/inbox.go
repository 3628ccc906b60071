package app

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/po-extractor/internal/async"
	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/ingest"
	"github.com/joseph-ayodele/po-extractor/internal/pipeline"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
)

// Submitter creates jobs for uploads; *pipeline.Processor satisfies it.
type Submitter interface {
	Submit(ctx context.Context, up *pipeline.Upload) (*repository.Job, bool, error)
}

// RunInbox watches cfg.InboxDir and enqueues every PDF dropped into a customer
// folder. It returns when ctx is cancelled.
func RunInbox(ctx context.Context, cfg common.QueueConfig, sub Submitter, q async.Queue, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	drops, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Root:        cfg.InboxDir,
		InitialScan: true,
		Debounce:    cfg.InboxDebounce,
	}, logger)
	if err != nil {
		return err
	}

	for {
		select {
		case d, ok := <-drops:
			if !ok {
				return nil
			}
			up := pipeline.Upload{Customer: d.Customer, Path: d.Path}
			job, dup, err := sub.Submit(ctx, &up)
			if err != nil {
				logger.Warn("inbox.submit.failed", "path", d.Path, "customer", d.Customer, "err", err)
				continue
			}
			if dup {
				logger.Info("inbox.duplicate", "path", d.Path, "job_id", job.ID)
				continue
			}
			if err := q.Enqueue(ctx, async.Job{JobID: job.ID, Upload: up}); err != nil {
				logger.Error("inbox.enqueue.failed", "job_id", job.ID, "err", err)
				continue
			}
			logger.Info("inbox.enqueued", "path", d.Path, "customer", up.Customer, "job_id", job.ID)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("inbox.watch.error", "err", err)
		case <-ctx.Done():
			return nil
		}
	}
}
