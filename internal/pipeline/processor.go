package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/ingest"
	"github.com/joseph-ayodele/po-extractor/internal/llm"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
	"github.com/joseph-ayodele/po-extractor/internal/storage"
	"github.com/joseph-ayodele/po-extractor/internal/textextract"
)

// Upload is one purchase-order file waiting to be processed.
type Upload struct {
	Customer string
	Filename string
	Path     string
	// ContentHash is computed from Path when empty.
	ContentHash string
	// Temporary marks Path as a server-side copy that is deleted once
	// processing ends, whatever the outcome.
	Temporary bool
}

// Result is the outcome of one processed document.
type Result struct {
	JobID    uuid.UUID          `json:"job_id"`
	Customer string             `json:"customer"`
	Filename string             `json:"filename"`
	Records  []reconcile.Record `json:"records"`
	Warnings []string           `json:"warnings,omitempty"`
	// Duplicate is set when an earlier job already reconciled the same content.
	Duplicate bool `json:"duplicate,omitempty"`
}

// Processor coordinates text extraction, the LLM passes, reconciliation and persistence.
type Processor struct {
	logger     *slog.Logger
	registry   *profiles.Registry
	text       textextract.Extractor
	fields     llm.FieldExtractor
	reconciler *reconcile.Reconciler
	jobs       repository.JobRepository
	records    repository.RecordRepository
	archive    storage.Archiver
}

// NewProcessor wires a Processor. archive may be nil.
func NewProcessor(
	logger *slog.Logger,
	registry *profiles.Registry,
	text textextract.Extractor,
	fields llm.FieldExtractor,
	reconciler *reconcile.Reconciler,
	jobs repository.JobRepository,
	records repository.RecordRepository,
	archive storage.Archiver,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:     logger,
		registry:   registry,
		text:       text,
		fields:     fields,
		reconciler: reconciler,
		jobs:       jobs,
		records:    records,
		archive:    archive,
	}
}

// Registry returns the customer profiles the processor resolves uploads against.
func (p *Processor) Registry() *profiles.Registry { return p.registry }

// Submit validates the customer and creates a QUEUED job for up.
// When the same content was already reconciled for that customer the earlier
// job is returned with duplicate set and nothing is created.
func (p *Processor) Submit(ctx context.Context, up *Upload) (job *repository.Job, duplicate bool, err error) {
	profile, err := p.registry.Lookup(up.Customer)
	if err != nil {
		return nil, false, err
	}
	up.Customer = profile.Code
	if up.Filename == "" {
		up.Filename = filepath.Base(up.Path)
	}
	if up.ContentHash == "" {
		sum, err := ingest.HashFile(up.Path)
		if err != nil {
			return nil, false, common.NewAppError(common.CodeInvalidUpload, "cannot read upload", err)
		}
		up.ContentHash = sum
	}

	prev, err := p.jobs.FindByHash(ctx, up.Customer, up.ContentHash)
	switch {
	case err == nil:
		p.logger.Info("pipeline.duplicate", "job_id", prev.ID, "customer", up.Customer, "filename", up.Filename)
		return prev, true, nil
	case !errors.Is(err, common.ErrNotFound):
		return nil, false, err
	}

	job, err = p.jobs.Create(ctx, up.Customer, up.Filename, up.ContentHash)
	if err != nil {
		return nil, false, err
	}
	p.logger.Debug("pipeline.submitted", "job_id", job.ID, "customer", up.Customer, "filename", up.Filename)
	return job, false, nil
}

// ProcessFile submits and runs up synchronously.
func (p *Processor) ProcessFile(ctx context.Context, up Upload) (Result, error) {
	job, dup, err := p.Submit(ctx, &up)
	if err != nil {
		p.Discard(up)
		return Result{}, err
	}
	if dup {
		p.Discard(up)
		return p.stored(ctx, job)
	}
	return p.Run(ctx, job.ID, up)
}

func (p *Processor) stored(ctx context.Context, job *repository.Job) (Result, error) {
	rows, err := p.records.ListByJob(ctx, job.ID)
	if err != nil {
		return Result{}, err
	}
	res := Result{JobID: job.ID, Customer: job.Customer, Filename: job.Filename, Duplicate: true}
	for _, r := range rows {
		res.Records = append(res.Records, r.Fields)
	}
	return res, nil
}

// Run processes an already submitted job. Any failure is recorded on the job row.
func (p *Processor) Run(ctx context.Context, jobID uuid.UUID, up Upload) (Result, error) {
	start := time.Now()
	defer p.Discard(up)
	res := Result{JobID: jobID, Customer: up.Customer, Filename: up.Filename}

	fail := func(stage string, err error) (Result, error) {
		p.logger.Error("pipeline."+stage+".failed", "job_id", jobID, "customer", up.Customer, "err", err)
		// record the failure even when ctx has timed out
		if ferr := p.jobs.FinishFailure(context.WithoutCancel(ctx), jobID, err.Error()); ferr != nil {
			p.logger.Warn("pipeline.finish_failure.failed", "job_id", jobID, "err", ferr)
		}
		return res, err
	}

	profile, err := p.registry.Lookup(up.Customer)
	if err != nil {
		return fail("profile", err)
	}
	ctx = common.WithDocumentID(common.WithCustomer(ctx, profile.Code), jobID.String())
	if err := p.jobs.MarkRunning(ctx, jobID); err != nil {
		return fail("start", err)
	}

	p.archiveUpload(ctx, jobID, up)

	// 1) text layer, limited to the pages this customer's layout needs
	text, err := p.text.Extract(ctx, up.Path, profile.SelectPages)
	if err != nil {
		return fail("text", err)
	}
	if strings.TrimSpace(text.Text) == "" {
		return fail("text", common.NewAppError(common.CodeInvalidUpload, "document has no extractable text", common.ErrInvalidInput))
	}
	res.Warnings = append(res.Warnings, text.Warnings...)
	if err := p.jobs.FinishText(ctx, jobID, text.Pages); err != nil {
		return fail("text", err)
	}
	p.logger.Info("pipeline.text.ok", "job_id", jobID, "pages", text.Pages, "pages_read", len(text.PagesRead), "chars", len(text.Text))

	// 2) extract + refine
	extracted, err := p.fields.ExtractFields(ctx, llm.ExtractRequest{
		DocumentID:   jobID.String(),
		FilenameHint: up.Filename,
		Text:         text.Text,
		Profile:      profile,
	})
	if err != nil {
		return fail("llm", err)
	}
	if err := p.jobs.FinishLLM(ctx, jobID, string(extracted.Refined)); err != nil {
		return fail("llm", err)
	}
	p.logger.Info("pipeline.llm.ok", "job_id", jobID, "model", extracted.Model, "tokens", extracted.Tokens)

	// 3) reconcile + persist
	outcomes, err := p.reconciler.ReconcileDocument(string(extracted.Refined), profile)
	if err != nil {
		return fail("reconcile", err)
	}
	res.Records = reconcile.Records(outcomes)
	for i, o := range outcomes {
		for _, w := range o.Warnings {
			if len(outcomes) > 1 {
				w = fmt.Sprintf("line %d: %s", i+1, w)
			}
			res.Warnings = append(res.Warnings, w)
		}
	}
	if _, err := p.records.InsertBatch(ctx, jobID, profile.Code, res.Records); err != nil {
		return fail("persist", err)
	}
	if err := p.jobs.FinishReconciled(ctx, jobID); err != nil {
		return fail("persist", err)
	}

	p.logger.Info("pipeline.done",
		"job_id", jobID, "customer", profile.Code, "records", len(res.Records),
		"warnings", len(res.Warnings), "elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// Discard removes a temporary upload. Files the caller owns are left alone.
func (p *Processor) Discard(up Upload) {
	if !up.Temporary || up.Path == "" {
		return
	}
	if err := os.Remove(up.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("pipeline.upload.cleanup_failed", "path", up.Path, "err", err)
	}
}

func (p *Processor) archiveUpload(ctx context.Context, jobID uuid.UUID, up Upload) {
	if p.archive == nil {
		return
	}
	key := storage.KeyFor(up.Customer, jobID.String(), up.Filename)
	if err := p.archive.Put(ctx, key, up.Path); err != nil {
		p.logger.Warn("pipeline.archive.failed", "job_id", jobID, "key", key, "err", err)
		return
	}
	if err := p.jobs.SetArchiveKey(ctx, jobID, key); err != nil {
		p.logger.Warn("pipeline.archive.link_failed", "job_id", jobID, "err", err)
	}
}

// FileResult is one entry of a batch run: a result or the error that stopped that file.
type FileResult struct {
	Filename string                     `json:"filename"`
	Result   *Result                    `json:"result,omitempty"`
	Error    *reconcile.ErrorDescriptor `json:"error,omitempty"`
	Err      error                      `json:"-"`
}

// ProcessBatch processes uploads concurrently, at most limit at a time.
// One failing file never stops the others; results keep input order.
func (p *Processor) ProcessBatch(ctx context.Context, uploads []Upload, limit int) []FileResult {
	out := make([]FileResult, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, up := range uploads {
		g.Go(func() error {
			fr := FileResult{Filename: up.Filename}
			if fr.Filename == "" {
				fr.Filename = filepath.Base(up.Path)
			}
			if err := gctx.Err(); err != nil {
				p.Discard(up)
				fr.Err, fr.Error = err, reconcile.Describe(err)
				out[i] = fr
				return nil
			}
			res, err := p.ProcessFile(gctx, up)
			if err != nil {
				fr.Err, fr.Error = err, reconcile.Describe(err)
			} else {
				fr.Result = &res
			}
			out[i] = fr
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range out {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.Info("pipeline.batch.done", "files", len(uploads), "failed", failed)
	return out
}
