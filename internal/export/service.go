package export

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
)

const sheet = "Purchase Orders"

// fixed leading columns; any other record keys follow in sorted order
var fieldColumns = []string{
	constants.FieldPurchaseOrderNumber,
	constants.FieldMaterialNumber,
	constants.FieldQuantity,
	constants.FieldUnit,
	constants.FieldRequiredDeliveryDate,
	constants.FieldDeliverTo,
}

// Service produces XLSX workbooks of stored canonical records.
type Service struct {
	records repository.RecordRepository
	logger  *slog.Logger
}

func NewService(records repository.RecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// ExportRecordsXLSX returns a workbook (as bytes) of the records stored for customer
// within the optional [from, to] creation window. An empty customer exports every customer.
func (s *Service) ExportRecordsXLSX(ctx context.Context, customer string, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	recs, err := s.records.List(ctx, repository.ListFilter{Customer: strings.ToUpper(customer), From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	out, err := WriteXLSX(recs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"customer", customer,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// WriteXLSX renders records into a single-sheet workbook.
func WriteXLSX(recs []repository.StoredRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := append([]string{"Customer", "Job ID", "Line"}, fieldColumns...)
	headers = append(headers, extraColumns(recs)...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	for r, rec := range recs {
		row := r + 2
		values := []any{rec.Customer, rec.JobID.String(), rec.Line}
		for _, key := range headers[3:] {
			values = append(values, rec.Fields[key])
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 10) // customer
	_ = f.SetColWidth(sheet, "B", "B", 38) // job id
	_ = f.SetColWidth(sheet, "C", "C", 6)
	_ = f.SetColWidth(sheet, "D", "E", 22)
	_ = f.SetColWidth(sheet, "F", "H", 14)
	_ = f.SetColWidth(sheet, "I", "I", 16) // deliver to

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func extraColumns(recs []repository.StoredRecord) []string {
	seen := map[string]bool{}
	for _, c := range fieldColumns {
		seen[c] = true
	}
	var extra []string
	for _, r := range recs {
		for k := range r.Fields {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	slices.Sort(extra)
	return extra
}
