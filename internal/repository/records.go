package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
)

const recordsTable = "po_records"

// StoredRecord is one persisted canonical record (one order line).
type StoredRecord struct {
	ID        uuid.UUID        `json:"id"`
	JobID     uuid.UUID        `json:"job_id"`
	Customer  string           `json:"customer"`
	Line      int              `json:"line"`
	Fields    reconcile.Record `json:"fields"`
	CreatedAt time.Time        `json:"created_at"`
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	Customer string
	From, To *time.Time
	Limit    int
}

type RecordRepository interface {
	InsertBatch(ctx context.Context, jobID uuid.UUID, customer string, recs []reconcile.Record) ([]StoredRecord, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]StoredRecord, error)
	List(ctx context.Context, f ListFilter) ([]StoredRecord, error)
}

type recordRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewRecordRepository(db *DB, logger *slog.Logger) RecordRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &recordRepo{db: db, logger: logger}
}

// InsertBatch stores all lines of one document in a single transaction.
func (r *recordRepo) InsertBatch(ctx context.Context, jobID uuid.UUID, customer string, recs []reconcile.Record) ([]StoredRecord, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	out := make([]StoredRecord, 0, len(recs))

	ins := r.db.builder().Insert(recordsTable).Columns(
		"id", "job_id", "customer", "line_no",
		"purchase_order_number", "quantity", "unit", "required_delivery_date", "material_number", "deliver_to",
		"fields", "created_at",
	)
	for i, rec := range recs {
		fields, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
		sr := StoredRecord{ID: uuid.New(), JobID: jobID, Customer: customer, Line: i + 1, Fields: rec, CreatedAt: now}
		ins = ins.Values(
			sr.ID.String(), jobID.String(), customer, sr.Line,
			rec[constants.FieldPurchaseOrderNumber], rec[constants.FieldQuantity], rec[constants.FieldUnit],
			rec[constants.FieldRequiredDeliveryDate], rec[constants.FieldMaterialNumber], rec[constants.FieldDeliverTo],
			string(fields), formatTime(now),
		)
		out = append(out, sr)
	}
	query, args := ins.Query()

	tx, err := r.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		r.logger.Error("failed to insert records", "job_id", jobID, "count", len(recs), "error", err)
		return nil, fmt.Errorf("%w: insert records: %v", common.ErrDatabase, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	r.logger.Info("records stored", "job_id", jobID, "customer", customer, "count", len(out))
	return out, nil
}

func (r *recordRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]StoredRecord, error) {
	sel := r.db.builder().Select("id", "job_id", "customer", "line_no", "fields", "created_at").
		From(entsql.Table(recordsTable)).
		Where(entsql.EQ("job_id", jobID.String())).
		OrderBy("line_no")
	return r.query(ctx, sel)
}

func (r *recordRepo) List(ctx context.Context, f ListFilter) ([]StoredRecord, error) {
	sel := r.db.builder().Select("id", "job_id", "customer", "line_no", "fields", "created_at").
		From(entsql.Table(recordsTable))

	var preds []*entsql.Predicate
	if f.Customer != "" {
		preds = append(preds, entsql.EQ("customer", f.Customer))
	}
	if f.From != nil {
		preds = append(preds, entsql.GTE("created_at", formatTime(*f.From)))
	}
	if f.To != nil {
		preds = append(preds, entsql.LTE("created_at", formatTime(*f.To)))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	sel = sel.OrderBy("created_at", "job_id", "line_no")
	if f.Limit > 0 {
		sel = sel.Limit(f.Limit)
	}
	return r.query(ctx, sel)
}

func (r *recordRepo) query(ctx context.Context, sel *entsql.Selector) ([]StoredRecord, error) {
	query, args := sel.Query()
	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			id, jobID, fields, created string
			sr                         StoredRecord
		)
		if err := rows.Scan(&id, &jobID, &sr.Customer, &sr.Line, &fields, &created); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", common.ErrDatabase, err)
		}
		if sr.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: record id: %v", common.ErrDatabase, err)
		}
		if sr.JobID, err = uuid.Parse(jobID); err != nil {
			return nil, fmt.Errorf("%w: job id: %v", common.ErrDatabase, err)
		}
		if err := json.Unmarshal([]byte(fields), &sr.Fields); err != nil {
			return nil, fmt.Errorf("%w: decode fields: %v", common.ErrDatabase, err)
		}
		sr.CreatedAt = parseTime(created)
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list records: %v", common.ErrDatabase, err)
	}
	return out, nil
}
