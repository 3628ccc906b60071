package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/common"
)

const jobsTable = "po_jobs"

var jobColumns = []string{
	"id", "customer", "filename", "content_hash", "status", "page_count",
	"raw_json", "error_message", "archive_key", "created_at", "updated_at",
}

// Job tracks one uploaded document through the pipeline.
type Job struct {
	ID           uuid.UUID           `json:"id"`
	Customer     string              `json:"customer"`
	Filename     string              `json:"filename"`
	ContentHash  string              `json:"content_hash,omitempty"`
	Status       constants.JobStatus `json:"status"`
	PageCount    int                 `json:"page_count"`
	RawJSON      string              `json:"raw_json,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	ArchiveKey   string              `json:"archive_key,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type JobRepository interface {
	Create(ctx context.Context, customer, filename, contentHash string) (*Job, error)
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	FindByHash(ctx context.Context, customer, contentHash string) (*Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	FinishText(ctx context.Context, id uuid.UUID, pages int) error
	FinishLLM(ctx context.Context, id uuid.UUID, rawJSON string) error
	FinishReconciled(ctx context.Context, id uuid.UUID) error
	FinishFailure(ctx context.Context, id uuid.UUID, message string) error
	SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error
	CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

func (r *jobRepo) Create(ctx context.Context, customer, filename, contentHash string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.New(),
		Customer:    customer,
		Filename:    filename,
		ContentHash: contentHash,
		Status:      constants.JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	query, args := r.db.builder().Insert(jobsTable).
		Columns("id", "customer", "filename", "content_hash", "status", "page_count", "created_at", "updated_at").
		Values(job.ID.String(), customer, filename, contentHash, string(job.Status), 0, formatTime(now), formatTime(now)).
		Query()
	if _, err := r.db.SQL().ExecContext(ctx, query, args...); err != nil {
		r.log.Error("po_job create failed", "customer", customer, "filename", filename, "err", err)
		return nil, fmt.Errorf("%w: create job: %v", common.ErrDatabase, err)
	}
	r.log.Info("po_job created", "job_id", job.ID, "customer", customer, "filename", filename)
	return job, nil
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	query, args := r.db.builder().Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	return r.one(ctx, query, args)
}

func (r *jobRepo) FindByHash(ctx context.Context, customer, contentHash string) (*Job, error) {
	query, args := r.db.builder().Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.And(
			entsql.EQ("customer", customer),
			entsql.EQ("content_hash", contentHash),
			entsql.EQ("status", string(constants.JobStatusReconciled)),
		)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1).
		Query()
	return r.one(ctx, query, args)
}

func (r *jobRepo) one(ctx context.Context, query string, args []any) (*Job, error) {
	row := r.db.SQL().QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load job: %v", common.ErrDatabase, err)
	}
	return job, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		id, status, created, updated string
		raw, errMsg, archive         sql.NullString
		job                          Job
	)
	if err := s.Scan(&id, &job.Customer, &job.Filename, &job.ContentHash, &status, &job.PageCount,
		&raw, &errMsg, &archive, &created, &updated); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	job.ID = parsed
	job.Status = constants.JobStatus(status)
	job.RawJSON = raw.String
	job.ErrorMessage = errMsg.String
	job.ArchiveKey = archive.String
	job.CreatedAt = parseTime(created)
	job.UpdatedAt = parseTime(updated)
	return &job, nil
}

func (r *jobRepo) update(ctx context.Context, id uuid.UUID, set map[string]any) error {
	u := r.db.builder().Update(jobsTable).Set("updated_at", formatTime(time.Now()))
	for _, col := range []string{"status", "page_count", "raw_json", "error_message", "archive_key"} {
		if v, ok := set[col]; ok {
			u = u.Set(col, v)
		}
	}
	query, args := u.Where(entsql.EQ("id", id.String())).Query()
	res, err := r.db.SQL().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update job: %v", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *jobRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, map[string]any{"status": string(constants.JobStatusRunning)})
}

func (r *jobRepo) FinishText(ctx context.Context, id uuid.UUID, pages int) error {
	if err := r.update(ctx, id, map[string]any{
		"status":     string(constants.JobStatusTextOK),
		"page_count": pages,
	}); err != nil {
		r.log.Error("po_job finish(TEXT_OK) failed", "job_id", id, "err", err)
		return err
	}
	r.log.Info("po_job finished (TEXT_OK)", "job_id", id, "pages", pages)
	return nil
}

func (r *jobRepo) FinishLLM(ctx context.Context, id uuid.UUID, rawJSON string) error {
	if err := r.update(ctx, id, map[string]any{
		"status":   string(constants.JobStatusLLMOK),
		"raw_json": rawJSON,
	}); err != nil {
		r.log.Error("po_job finish(LLM_OK) failed", "job_id", id, "err", err)
		return err
	}
	r.log.Info("po_job finished (LLM_OK)", "job_id", id, "raw_bytes", len(rawJSON))
	return nil
}

func (r *jobRepo) FinishReconciled(ctx context.Context, id uuid.UUID) error {
	if err := r.update(ctx, id, map[string]any{"status": string(constants.JobStatusReconciled)}); err != nil {
		r.log.Error("po_job finish(RECONCILED) failed", "job_id", id, "err", err)
		return err
	}
	r.log.Info("po_job finished (RECONCILED)", "job_id", id)
	return nil
}

func (r *jobRepo) FinishFailure(ctx context.Context, id uuid.UUID, message string) error {
	if err := r.update(ctx, id, map[string]any{
		"status":        string(constants.JobStatusFailed),
		"error_message": message,
	}); err != nil {
		r.log.Error("po_job finish(FAILED) failed", "job_id", id, "err", err)
		return err
	}
	r.log.Warn("po_job finished (FAILED)", "job_id", id, "error", message)
	return nil
}

func (r *jobRepo) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	return r.update(ctx, id, map[string]any{"archive_key": key})
}

// CountByStatus reports how many jobs sit in each status.
func (r *jobRepo) CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error) {
	query, args := r.db.builder().Select("status", entsql.Count("*")).
		From(entsql.Table(jobsTable)).
		GroupBy("status").
		Query()
	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: count jobs: %v", common.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	out := map[constants.JobStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("%w: scan job count: %v", common.ErrDatabase, err)
		}
		out[constants.JobStatus(status)] = n
	}
	return out, rows.Err()
}
