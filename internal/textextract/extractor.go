package textextract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// PageSelector picks zero-based page indexes out of total pages.
type PageSelector func(total int) []int

// AllPages reads every page.
func AllPages(total int) []int {
	out := make([]int, total)
	for i := range out {
		out[i] = i
	}
	return out
}

// Extractor turns a document into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string, pages PageSelector) (Result, error)
}

// Result is the text pulled out of one document.
type Result struct {
	Text      string
	Pages     int
	PagesRead []int
	Method    string
	Duration  time.Duration
	Warnings  []string
}

// PDFExtractor reads the embedded text layer of a PDF. Scanned PDFs with
// no text layer come back empty with a warning.
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

// Extract reads the file at path.
func (e *PDFExtractor) Extract(ctx context.Context, path string, pages PageSelector) (Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read pdf: %w", err)
	}
	return e.ExtractBytes(ctx, content, pages)
}

// ExtractBytes reads an in-memory PDF.
func (e *PDFExtractor) ExtractBytes(ctx context.Context, content []byte, pages PageSelector) (Result, error) {
	start := time.Now()
	if len(content) == 0 {
		return Result{}, fmt.Errorf("empty PDF content")
	}
	if pages == nil {
		pages = AllPages
	}

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}

	res := Result{Pages: r.NumPage(), Method: "pdf-text"}
	var b strings.Builder
	for _, idx := range pages(res.Pages) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page := r.Page(idx + 1)
		if page.V.IsNull() {
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", idx+1, err))
			continue
		}
		txt = strings.TrimSpace(txt)
		if txt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(txt)
		res.PagesRead = append(res.PagesRead, idx)
	}

	res.Text = FixNumberFormat(b.String())
	res.Duration = time.Since(start)
	if res.Text == "" {
		res.Warnings = append(res.Warnings, "no text layer found")
	}
	e.logger.Info("textextract.pdf.done",
		"pages", res.Pages,
		"pages_read", len(res.PagesRead),
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

var groupedDecimal = regexp.MustCompile(`(\d{1,3}),(\d{3}\.\d+)`)

// FixNumberFormat drops the thousands separator from numbers written as
// 1,234.567 so the language model sees 1234.567.
func FixNumberFormat(text string) string {
	return groupedDecimal.ReplaceAllString(text, "${1}${2}")
}
