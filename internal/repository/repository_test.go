package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate is idempotent")
	t.Cleanup(func() { db.Close(nil) })
	return db
}

func TestOpenEmptyDSNUsesSQLite(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, "sqlite3", db.Dialect())
	assert.NoError(t, db.HealthCheck(context.Background(), time.Second, nil))
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(openTestDB(t), nil)

	job, err := jobs.Create(ctx, "B", "po.pdf", "abc123")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, job.Status)

	require.NoError(t, jobs.MarkRunning(ctx, job.ID))
	require.NoError(t, jobs.FinishText(ctx, job.ID, 3))
	require.NoError(t, jobs.FinishLLM(ctx, job.ID, `{"Quantity":"1 KG"}`))
	require.NoError(t, jobs.SetArchiveKey(ctx, job.ID, "B/abc123.pdf"))

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusLLMOK, got.Status)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, `{"Quantity":"1 KG"}`, got.RawJSON)
	assert.Equal(t, "B/abc123.pdf", got.ArchiveKey)
	assert.Equal(t, "po.pdf", got.Filename)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = jobs.FindByHash(ctx, "B", "abc123")
	assert.ErrorIs(t, err, common.ErrNotFound, "only reconciled jobs count as duplicates")

	require.NoError(t, jobs.FinishReconciled(ctx, job.ID))
	dup, err := jobs.FindByHash(ctx, "B", "abc123")
	require.NoError(t, err)
	assert.Equal(t, job.ID, dup.ID)

	_, err = jobs.FindByHash(ctx, "G", "abc123")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestJobFailure(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(openTestDB(t), nil)

	job, err := jobs.Create(ctx, "BA", "bad.pdf", "")
	require.NoError(t, err)
	require.NoError(t, jobs.FinishFailure(ctx, job.ID, "extraction format: unexpected EOF"))

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, "extraction format: unexpected EOF", got.ErrorMessage)
}

func TestJobCountByStatus(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(openTestDB(t), nil)

	for i, hash := range []string{"h1", "h2", "h3"} {
		job, err := jobs.Create(ctx, "B", "po.pdf", hash)
		require.NoError(t, err)
		if i == 0 {
			require.NoError(t, jobs.FinishFailure(ctx, job.ID, "boom"))
		}
	}

	counts, err := jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[constants.JobStatus]int{
		constants.JobStatusQueued: 2,
		constants.JobStatusFailed: 1,
	}, counts)
}

func TestJobNotFound(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(openTestDB(t), nil)

	_, err := jobs.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, jobs.MarkRunning(ctx, uuid.New()), common.ErrNotFound)
}

func TestRecordsInsertAndList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	jobs := NewJobRepository(db, nil)
	records := NewRecordRepository(db, nil)

	jobB, err := jobs.Create(ctx, "B", "b.pdf", "h1")
	require.NoError(t, err)
	jobG, err := jobs.Create(ctx, "G", "g.pdf", "h2")
	require.NoError(t, err)

	stored, err := records.InsertBatch(ctx, jobB.ID, "B", []reconcile.Record{
		{"Purchase Order Number": "PO-1", "Quantity": "997.913", "Unit": "KG", "Deliver to": "bsh_1", "sold_to_num": "bsp_222"},
		{"Purchase Order Number": "PO-1", "Quantity": "10", "Unit": "KG", "Deliver to": "N/A", "sold_to_num": "bsp_222"},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 2, stored[1].Line)

	_, err = records.InsertBatch(ctx, jobG.ID, "G", []reconcile.Record{{"Quantity": "5"}})
	require.NoError(t, err)

	byJob, err := records.ListByJob(ctx, jobB.ID)
	require.NoError(t, err)
	require.Len(t, byJob, 2)
	assert.Equal(t, 1, byJob[0].Line)
	assert.Equal(t, "bsh_1", byJob[0].Fields["Deliver to"])
	assert.Equal(t, "bsp_222", byJob[1].Fields["sold_to_num"])

	onlyG, err := records.List(ctx, ListFilter{Customer: "G"})
	require.NoError(t, err)
	require.Len(t, onlyG, 1)
	assert.Equal(t, jobG.ID, onlyG[0].JobID)

	all, err := records.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := records.List(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	future := time.Now().Add(time.Hour)
	none, err := records.List(ctx, ListFilter{From: &future})
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := records.InsertBatch(ctx, jobB.ID, "B", nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
