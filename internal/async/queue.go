package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/po-extractor/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is a submitted upload waiting for a worker.
type Job struct {
	JobID       uuid.UUID
	Upload      pipeline.Upload
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Runner processes one submitted job; *pipeline.Processor satisfies it.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID, up pipeline.Upload) (pipeline.Result, error)
}
