package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/async"
	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/normalize"
	"github.com/joseph-ayodele/po-extractor/internal/pipeline"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
)

type customerView struct {
	Code          string           `json:"code"`
	Label         string           `json:"label,omitempty"`
	SoldTo        *profiles.SoldTo `json:"sold_to,omitempty"`
	ShipToCount   int              `json:"ship_to_count"`
	NormalizeOnly bool             `json:"normalize_only,omitempty"`
}

func (s *HTTPServer) listCustomers(c *gin.Context) {
	list := s.deps.Registry.Profiles()
	out := make([]customerView, 0, len(list))
	for _, p := range list {
		out = append(out, customerView{
			Code:          p.Code,
			Label:         p.Label,
			SoldTo:        p.SoldTo,
			ShipToCount:   len(p.ShipTo),
			NormalizeOnly: p.NormalizeOnly,
		})
	}
	c.JSON(http.StatusOK, gin.H{"customers": out})
}

func (s *HTTPServer) customerShipTo(c *gin.Context) {
	p, err := s.deps.Registry.Lookup(c.Param("customer"))
	if err != nil {
		s.fail(c, err)
		return
	}
	shipTo := p.ShipTo
	if shipTo == nil {
		shipTo = []normalize.Candidate{}
	}
	c.JSON(http.StatusOK, gin.H{"customer": p.Code, "ship_to": shipTo})
}

func (s *HTTPServer) processPurchaseOrder(c *gin.Context) {
	s.processSingle(c, c.DefaultPostForm("customer", profiles.DefaultUploadCode))
}

func (s *HTTPServer) processDefaultPurchaseOrder(c *gin.Context) {
	s.processSingle(c, profiles.DefaultCode)
}

func (s *HTTPServer) processSingle(c *gin.Context, customer string) {
	if !s.pipelineReady(c) {
		return
	}
	// resolve the customer before touching the upload
	if _, err := s.deps.Registry.Lookup(customer); err != nil {
		s.fail(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		s.fail(c, badRequest("multipart field 'file' is required"))
		return
	}
	path, err := s.saveUpload(fh)
	if err != nil {
		s.fail(c, err)
		return
	}

	res, err := s.deps.Processor.ProcessFile(c.Request.Context(), pipeline.Upload{
		Customer: customer,
		Filename:  filepath.Base(fh.Filename),
		Path:      path,
		Temporary: true,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type fileEntry struct {
	Result *pipeline.Result           `json:"result,omitempty"`
	Error  *reconcile.ErrorDescriptor `json:"error,omitempty"`
}

func (s *HTTPServer) processPurchaseOrders(c *gin.Context) {
	if !s.pipelineReady(c) {
		return
	}
	customer := c.DefaultPostForm("customer", profiles.DefaultUploadCode)
	if _, err := s.deps.Registry.Lookup(customer); err != nil {
		s.fail(c, err)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		s.fail(c, badRequest("multipart form is required"))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		s.fail(c, badRequest("multipart field 'files' is required"))
		return
	}

	results := make(map[string]fileEntry, len(files))
	var (
		uploads []pipeline.Upload
		names   []string
	)
	for _, fh := range files {
		name := uniqueName(results, filepath.Base(fh.Filename))
		path, err := s.saveUpload(fh)
		if err != nil {
			results[name] = fileEntry{Error: reconcile.Describe(err)}
			continue
		}
		results[name] = fileEntry{}
		names = append(names, name)
		uploads = append(uploads, pipeline.Upload{Customer: customer, Filename: filepath.Base(fh.Filename), Path: path, Temporary: true})
	}

	for i, fr := range s.deps.Processor.ProcessBatch(c.Request.Context(), uploads, s.deps.BatchLimit) {
		results[names[i]] = fileEntry{Result: fr.Result, Error: fr.Error}
	}
	c.JSON(http.StatusOK, gin.H{"customer": strings.ToUpper(customer), "results": results})
}

// uniqueName suffixes repeated file names within one request.
func uniqueName(taken map[string]fileEntry, name string) string {
	if _, ok := taken[name]; !ok {
		return name
	}
	for i := 2; ; i++ {
		n := fmt.Sprintf("%s (%d)", name, i)
		if _, ok := taken[n]; !ok {
			return n
		}
	}
}

type reconcileDocument struct {
	ID       string          `json:"id"`
	Customer string          `json:"customer"`
	Data     json.RawMessage `json:"data"`
}

type reconcileRequest struct {
	Customer  string              `json:"customer"`
	Data      json.RawMessage     `json:"data"`
	Documents []reconcileDocument `json:"documents"`
}

// reconcile runs the normalization core on already extracted JSON. A single
// document answers with its records; "documents" answers per-document results keyed by id.
func (s *HTTPServer) reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("invalid JSON body: "+err.Error()))
		return
	}

	if len(req.Documents) > 0 {
		docs := make([]reconcile.Document, len(req.Documents))
		for i, d := range req.Documents {
			id := d.ID
			if id == "" {
				id = fmt.Sprintf("doc-%d", i+1)
			}
			customer := d.Customer
			if customer == "" {
				customer = req.Customer
			}
			docs[i] = reconcile.Document{ID: id, Customer: customer, Raw: rawDocument(d.Data)}
		}
		out := s.deps.Reconciler.ReconcileBatch(c.Request.Context(), s.deps.Registry, docs, s.deps.BatchLimit)
		keyed := make(map[string]reconcile.DocumentResult, len(out))
		for _, r := range out {
			keyed[r.ID] = r
		}
		c.JSON(http.StatusOK, gin.H{"results": keyed})
		return
	}

	profile, err := s.deps.Registry.Lookup(req.Customer)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(req.Data) == 0 {
		s.fail(c, badRequest("'data' is required"))
		return
	}
	outcomes, err := s.deps.Reconciler.ReconcileDocument(rawDocument(req.Data), profile)
	if err != nil {
		s.fail(c, err)
		return
	}
	var warnings []string
	for _, o := range outcomes {
		warnings = append(warnings, o.Warnings...)
	}
	c.JSON(http.StatusOK, gin.H{
		"customer": profile.Code,
		"records":  reconcile.Records(outcomes),
		"warnings": warnings,
	})
}

// rawDocument accepts either inline JSON or a JSON string holding the model's text answer.
func rawDocument(data json.RawMessage) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

func (s *HTTPServer) submitJob(c *gin.Context) {
	if !s.pipelineReady(c) {
		return
	}
	if s.deps.Queue == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{Error: &reconcile.ErrorDescriptor{Code: "UNAVAILABLE", Message: "background queue is disabled"}})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		s.fail(c, badRequest("multipart field 'file' is required"))
		return
	}
	path, err := s.saveUpload(fh)
	if err != nil {
		s.fail(c, err)
		return
	}

	up := pipeline.Upload{
		Customer:  c.DefaultPostForm("customer", profiles.DefaultUploadCode),
		Filename:  filepath.Base(fh.Filename),
		Path:      path,
		Temporary: true,
	}
	job, dup, err := s.deps.Processor.Submit(c.Request.Context(), &up)
	if err != nil {
		s.deps.Processor.Discard(up)
		s.fail(c, err)
		return
	}
	if dup {
		s.deps.Processor.Discard(up)
		c.JSON(http.StatusOK, gin.H{"job": job, "duplicate": true})
		return
	}
	err = s.deps.Queue.Enqueue(c.Request.Context(), async.Job{
		JobID:     job.ID,
		Upload:    up,
		RequestID: common.RequestIDFromContext(c.Request.Context()),
	})
	if err != nil {
		// no worker will pick the job up, so close it here
		if ferr := s.deps.Jobs.FinishFailure(context.WithoutCancel(c.Request.Context()), job.ID, "enqueue: "+err.Error()); ferr != nil {
			s.logger.Warn("http.job.finish_failure.failed", "job_id", job.ID, "err", ferr)
		}
		s.deps.Processor.Discard(up)
		s.fail(c, fmt.Errorf("enqueue: %w", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "duplicate": false})
}

func (s *HTTPServer) getJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.fail(c, common.NewAppError("INVALID_ID", "job id must be a UUID", common.ErrInvalidInput))
		return
	}
	job, err := s.deps.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := gin.H{"job": job}
	if job.Status == constants.JobStatusReconciled {
		recs, err := s.deps.Records.ListByJob(c.Request.Context(), id)
		if err != nil {
			s.fail(c, err)
			return
		}
		resp["records"] = recs
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) exportRecords(c *gin.Context) {
	customer := strings.TrimSpace(c.Query("customer"))
	if customer != "" {
		p, err := s.deps.Registry.Lookup(customer)
		if err != nil {
			s.fail(c, err)
			return
		}
		customer = p.Code
	}
	from, err := parseDay(c.Query("from"), false)
	if err != nil {
		s.fail(c, err)
		return
	}
	to, err := parseDay(c.Query("to"), true)
	if err != nil {
		s.fail(c, err)
		return
	}

	xlsx, err := s.deps.Export.ExportRecordsXLSX(c.Request.Context(), customer, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	name := "purchase-orders.xlsx"
	if customer != "" {
		name = "purchase-orders-" + strings.ToLower(customer) + ".xlsx"
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", xlsx)
}

// parseDay reads an optional YYYY-MM-DD bound; an upper bound covers the whole day.
func parseDay(v string, endOfDay bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(constants.OutputDateLayout, v)
	if err != nil {
		return nil, common.NewAppError("INVALID_DATE", "dates must be YYYY-MM-DD", common.ErrInvalidInput)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (s *HTTPServer) pipelineReady(c *gin.Context) bool {
	if s.deps.Processor != nil {
		return true
	}
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{Error: &reconcile.ErrorDescriptor{
		Code: "UNAVAILABLE", Message: "document processing is not configured",
	}})
	return false
}

// saveUpload validates and stores one uploaded file under UploadDir.
func (s *HTTPServer) saveUpload(fh *multipart.FileHeader) (string, error) {
	if !constants.AllowedFile(fh.Filename) {
		return "", badRequest(fmt.Sprintf("%s: only PDF uploads are accepted", fh.Filename))
	}
	limit := int64(s.deps.MaxUploadMB) << 20
	if fh.Size > limit {
		return "", badRequest(fmt.Sprintf("%s: exceeds %d MB", fh.Filename, s.deps.MaxUploadMB))
	}
	if err := os.MkdirAll(s.deps.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", badRequest("cannot read upload")
	}
	defer func() { _ = src.Close() }()

	dst := filepath.Join(s.deps.UploadDir, uuid.NewString()+"-"+filepath.Base(fh.Filename))
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(out, io.LimitReader(src, limit+1)); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	s.logger.Debug("http.upload.saved", "filename", fh.Filename, "path", dst, "size", fh.Size)
	return dst, nil
}
