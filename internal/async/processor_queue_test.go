package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/pipeline"
)

type recordingRunner struct {
	mu       sync.Mutex
	seen     []uuid.UUID
	requests []string
	block    chan struct{}
	running  atomic.Int32
	peak     atomic.Int32
}

func (r *recordingRunner) Run(ctx context.Context, jobID uuid.UUID, up pipeline.Upload) (pipeline.Result, error) {
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.seen = append(r.seen, jobID)
	r.requests = append(r.requests, common.RequestIDFromContext(ctx))
	r.mu.Unlock()
	if up.Customer == "FAIL" {
		return pipeline.Result{}, errors.New("boom")
	}
	return pipeline.Result{JobID: jobID}, nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestQueueProcessesAllJobsBeforeShutdown(t *testing.T) {
	runner := &recordingRunner{}
	q := NewProcessorQueue(runner, nil, WithWorkers(3), WithQueueSize(16), WithProcessTimeout(time.Second))

	for i := 0; i < 10; i++ {
		customer := "B"
		if i%4 == 0 {
			customer = "FAIL"
		}
		require.NoError(t, q.Enqueue(context.Background(), Job{JobID: uuid.New(), Upload: pipeline.Upload{Customer: customer}, RequestID: "req-1"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, 10, runner.count())
	for _, id := range runner.requests {
		assert.Equal(t, "req-1", id)
	}
	assert.LessOrEqual(t, runner.peak.Load(), int32(3))
}

func TestQueueRejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&recordingRunner{}, nil, WithWorkers(1))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{JobID: uuid.New()})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueFullHonoursContext(t *testing.T) {
	runner := &recordingRunner{block: make(chan struct{})}
	q := NewProcessorQueue(runner, nil, WithWorkers(1), WithQueueSize(1))

	// one job held by the worker, one in the buffer
	require.NoError(t, q.Enqueue(context.Background(), Job{JobID: uuid.New()}))
	require.Eventually(t, func() bool { return runner.running.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{JobID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{JobID: uuid.New()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(runner.block)
	q.Shutdown(context.Background())
	assert.Equal(t, 2, runner.count())
}
