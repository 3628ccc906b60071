package llm

import (
	"context"

	"github.com/joseph-ayodele/po-extractor/internal/profiles"
)

// ExtractRequest carries the document text and the customer it belongs to.
type ExtractRequest struct {
	DocumentID   string
	FilenameHint string
	Text         string
	Profile      *profiles.Profile
}

// ExtractResult is the outcome of the extract and refine passes.
type ExtractResult struct {
	// Initial is the raw first-pass answer.
	Initial string
	// Refined is sanitized JSON that passed schema validation.
	Refined   []byte
	Model     string
	Sanitized []string
	Tokens    int
}

// FieldExtractor is the interface the pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}
