package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
)

// httpStatus maps domain errors onto response codes: bad input 400,
// unparseable upstream output 422, anything else 500.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrUnrecognizedCustomer),
		errors.Is(err, common.ErrInvalidInput),
		errors.Is(err, common.ErrValidation),
		common.ErrorCode(err) == common.CodeInvalidUpload:
		return http.StatusBadRequest
	case errors.Is(err, common.ErrExtractionFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error *reconcile.ErrorDescriptor `json:"error"`
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	desc := reconcile.Describe(err)
	if status == http.StatusNotFound && desc.Code == "INTERNAL" {
		desc.Code = "NOT_FOUND"
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("http.handler.failed", "path", c.FullPath(), "request_id", c.GetString("request_id"), "err", err)
		// internals stay in the log
		desc.Message = "internal error"
	}
	c.AbortWithStatusJSON(status, errorBody{Error: desc})
}

func badRequest(msg string) error {
	return common.NewAppError(common.CodeInvalidUpload, msg, common.ErrInvalidInput)
}
