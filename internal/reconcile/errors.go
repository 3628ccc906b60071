package reconcile

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/po-extractor/internal/common"
)

const snippetLen = 120

// ExtractionFormatError reports upstream output that could not be parsed
// into any record. It matches common.ErrExtractionFormat with errors.Is.
type ExtractionFormatError struct {
	Snippet string
	Cause   error
}

func newFormatError(raw string, cause error) *ExtractionFormatError {
	s := raw
	if len(s) > snippetLen {
		s = s[:snippetLen] + "..."
	}
	return &ExtractionFormatError{Snippet: s, Cause: cause}
}

func (e *ExtractionFormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction format: %v", e.Cause)
	}
	return "extraction format: unparseable record"
}

func (e *ExtractionFormatError) Unwrap() error { return e.Cause }

func (e *ExtractionFormatError) Is(target error) bool {
	return target == common.ErrExtractionFormat
}

// ErrorDescriptor is the per-document error shape returned to batch callers.
type ErrorDescriptor struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Describe converts err into an ErrorDescriptor, or nil when err is nil.
func Describe(err error) *ErrorDescriptor {
	if err == nil {
		return nil
	}
	code := common.ErrorCode(err)
	switch {
	case code != "":
	case errors.Is(err, common.ErrExtractionFormat):
		code = common.CodeExtractionFormat
	case errors.Is(err, common.ErrUnrecognizedCustomer):
		code = common.CodeUnrecognizedCustomer
	default:
		code = "INTERNAL"
	}
	return &ErrorDescriptor{Code: code, Message: err.Error()}
}
