package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/llm"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
	"github.com/joseph-ayodele/po-extractor/internal/textextract"
)

const refinedB = `{"Purchase Order Number":"4500012345","Quantity":"2,200.000 LB",` +
	`"Required Delivery Date":"04/01/2024","Material Number":"100234","Deliver to":"MAGA1 Warehouse, 123 Main St"}`

type fakeText struct {
	text  string
	total int

	mu       sync.Mutex
	selected []int
}

func (f *fakeText) Extract(_ context.Context, _ string, pages textextract.PageSelector) (textextract.Result, error) {
	sel := pages(f.total)
	f.mu.Lock()
	f.selected = sel
	f.mu.Unlock()
	return textextract.Result{Text: f.text, Pages: f.total, PagesRead: sel, Method: "fake"}, nil
}

type fakeLLM struct {
	refined string
	err     error
	calls   atomic.Int32
}

func (f *fakeLLM) ExtractFields(_ context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return llm.ExtractResult{}, f.err
	}
	if req.Profile == nil || req.Text == "" {
		return llm.ExtractResult{}, errors.New("incomplete request")
	}
	return llm.ExtractResult{Refined: []byte(f.refined), Model: "fake"}, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeArchive) Put(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

type harness struct {
	proc    *Processor
	text    *fakeText
	llm     *fakeLLM
	jobs    repository.JobRepository
	records repository.RecordRepository
	archive *fakeArchive
}

func newHarness(t *testing.T, refined string) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { db.Close(nil) })

	h := &harness{
		text:    &fakeText{text: "PURCHASE ORDER 4500012345", total: 5},
		llm:     &fakeLLM{refined: refined},
		jobs:    repository.NewJobRepository(db, nil),
		records: repository.NewRecordRepository(db, nil),
		archive: &fakeArchive{},
	}
	h.proc = NewProcessor(nil, profiles.Builtin(), h.text, h.llm,
		reconcile.New(reconcile.DefaultOptions(), nil), h.jobs, h.records, h.archive)
	return h
}

func writePDF(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestProcessFileHappyPath(t *testing.T) {
	h := newHarness(t, refinedB)
	ctx := context.Background()

	res, err := h.proc.ProcessFile(ctx, Upload{Customer: "b", Path: writePDF(t, "po.pdf", "order-1")})
	require.NoError(t, err)

	assert.Equal(t, "B", res.Customer)
	assert.Equal(t, "po.pdf", res.Filename)
	assert.False(t, res.Duplicate)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, "997.913", rec["Quantity"])
	assert.Equal(t, "KG", rec["Unit"])
	assert.Equal(t, "2024-04-01", rec["Required Delivery Date"])
	assert.Equal(t, "bsh_1", rec["Deliver to"])
	assert.Equal(t, "bsp_222", rec["sold_to_num"])

	// B reads every page except the last
	assert.Equal(t, []int{0, 1, 2, 3}, h.text.selected)

	job, err := h.jobs.Get(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusReconciled, job.Status)
	assert.Equal(t, 5, job.PageCount)
	assert.JSONEq(t, refinedB, job.RawJSON)
	assert.Equal(t, "purchase-orders/B/"+res.JobID.String()+"/po.pdf", job.ArchiveKey)
	assert.Equal(t, []string{job.ArchiveKey}, h.archive.keys)

	stored, err := h.records.ListByJob(ctx, res.JobID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec, stored[0].Fields)
}

func TestProcessFileDuplicateContent(t *testing.T) {
	h := newHarness(t, refinedB)
	ctx := context.Background()

	first, err := h.proc.ProcessFile(ctx, Upload{Customer: "B", Path: writePDF(t, "a.pdf", "same bytes")})
	require.NoError(t, err)
	second, err := h.proc.ProcessFile(ctx, Upload{Customer: "B", Path: writePDF(t, "b.pdf", "same bytes")})
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, int32(1), h.llm.calls.Load())

	// another customer is not a duplicate
	third, err := h.proc.ProcessFile(ctx, Upload{Customer: "C", Path: writePDF(t, "c.pdf", "same bytes")})
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
}

func TestProcessFileUnknownCustomer(t *testing.T) {
	h := newHarness(t, refinedB)

	_, err := h.proc.ProcessFile(context.Background(), Upload{Customer: "ZZZ", Path: writePDF(t, "po.pdf", "x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnrecognizedCustomer)
	assert.Equal(t, int32(0), h.llm.calls.Load())
}

func TestProcessFileMalformedLLMOutput(t *testing.T) {
	h := newHarness(t, "I could not find any order lines.")
	ctx := context.Background()

	up := Upload{Customer: "B", Path: writePDF(t, "po.pdf", "x")}
	job, dup, err := h.proc.Submit(ctx, &up)
	require.NoError(t, err)
	require.False(t, dup)

	_, err = h.proc.Run(ctx, job.ID, up)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExtractionFormat)

	got, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}

func TestProcessFileEmptyText(t *testing.T) {
	h := newHarness(t, refinedB)
	h.text.text = "   "

	_, err := h.proc.ProcessFile(context.Background(), Upload{Customer: "B", Path: writePDF(t, "scan.pdf", "x")})
	require.Error(t, err)
	assert.Equal(t, common.CodeInvalidUpload, common.ErrorCode(err))
	assert.Equal(t, int32(0), h.llm.calls.Load())
}

func TestProcessFileLLMError(t *testing.T) {
	h := newHarness(t, refinedB)
	h.llm.err = errors.New("upstream unavailable")

	_, err := h.proc.ProcessFile(context.Background(), Upload{Customer: "B", Path: writePDF(t, "po.pdf", "x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestProcessFileMissingPath(t *testing.T) {
	h := newHarness(t, refinedB)

	_, err := h.proc.ProcessFile(context.Background(), Upload{Customer: "B", Path: filepath.Join(t.TempDir(), "none.pdf")})
	require.Error(t, err)
	assert.Equal(t, common.CodeInvalidUpload, common.ErrorCode(err))
}

func TestProcessFileRemovesTemporaryUpload(t *testing.T) {
	h := newHarness(t, refinedB)
	ctx := context.Background()

	done := writePDF(t, "done.pdf", "ok")
	_, err := h.proc.ProcessFile(ctx, Upload{Customer: "B", Path: done, Temporary: true})
	require.NoError(t, err)
	assert.NoFileExists(t, done)

	// duplicate content is answered from the stored job
	dup := writePDF(t, "dup.pdf", "ok")
	res, err := h.proc.ProcessFile(ctx, Upload{Customer: "B", Path: dup, Temporary: true})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.NoFileExists(t, dup)

	h.llm.err = errors.New("upstream unavailable")
	failed := writePDF(t, "failed.pdf", "other")
	_, err = h.proc.ProcessFile(ctx, Upload{Customer: "B", Path: failed, Temporary: true})
	require.Error(t, err)
	assert.NoFileExists(t, failed)

	unknown := writePDF(t, "unknown.pdf", "x")
	_, err = h.proc.ProcessFile(ctx, Upload{Customer: "ZZZ", Path: unknown, Temporary: true})
	require.Error(t, err)
	assert.NoFileExists(t, unknown)
}

func TestProcessFileKeepsCallerOwnedFile(t *testing.T) {
	h := newHarness(t, refinedB)

	p := writePDF(t, "inbox.pdf", "mine")
	_, err := h.proc.ProcessFile(context.Background(), Upload{Customer: "B", Path: p})
	require.NoError(t, err)
	assert.FileExists(t, p)
}

func TestProcessBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	h := newHarness(t, refinedB)

	uploads := []Upload{
		{Customer: "B", Path: writePDF(t, "one.pdf", "1")},
		{Customer: "NOPE", Path: writePDF(t, "two.pdf", "2")},
		{Customer: "BA", Path: writePDF(t, "three.pdf", "3")},
	}
	out := h.proc.ProcessBatch(context.Background(), uploads, 2)
	require.Len(t, out, 3)

	assert.Equal(t, "one.pdf", out[0].Filename)
	require.NotNil(t, out[0].Result)
	assert.Equal(t, "bsh_1", out[0].Result.Records[0]["Deliver to"])

	assert.Equal(t, "two.pdf", out[1].Filename)
	assert.Nil(t, out[1].Result)
	require.NotNil(t, out[1].Error)
	assert.Equal(t, common.CodeUnrecognizedCustomer, out[1].Error.Code)

	assert.Equal(t, "three.pdf", out[2].Filename)
	require.NotNil(t, out[2].Result)
	assert.Equal(t, "BA", out[2].Result.Customer)
}

func TestProcessBatchCancelled(t *testing.T) {
	h := newHarness(t, refinedB)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := h.proc.ProcessBatch(ctx, []Upload{{Customer: "B", Path: writePDF(t, "po.pdf", "x")}}, 1)
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, context.Canceled)
}
