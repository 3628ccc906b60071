package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/async"
	"github.com/joseph-ayodele/po-extractor/internal/export"
	"github.com/joseph-ayodele/po-extractor/internal/llm"
	"github.com/joseph-ayodele/po-extractor/internal/pipeline"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
	"github.com/joseph-ayodele/po-extractor/internal/repository"
	"github.com/joseph-ayodele/po-extractor/internal/textextract"
)

const refinedB = `{"Purchase Order Number":"4500012345","Quantity":"2,200.000 LB",` +
	`"Required Delivery Date":"04/01/2024","Material Number":"100234","Deliver to":"MAGA1 Warehouse, 123 Main St"}`

type stubText struct{}

func (stubText) Extract(_ context.Context, _ string, pages textextract.PageSelector) (textextract.Result, error) {
	return textextract.Result{Text: "PURCHASE ORDER", Pages: 2, PagesRead: pages(2)}, nil
}

type stubLLM struct{ refined string }

func (s stubLLM) ExtractFields(context.Context, llm.ExtractRequest) (llm.ExtractResult, error) {
	return llm.ExtractResult{Refined: []byte(s.refined), Model: "stub"}, nil
}

type testEnv struct {
	router    http.Handler
	jobs      repository.JobRepository
	queue     async.Queue
	uploadDir string
}

func newTestEnv(t *testing.T, refined string, withPipeline bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { db.Close(nil) })

	reg := profiles.Builtin()
	rec := reconcile.New(reconcile.DefaultOptions(), nil)
	jobs := repository.NewJobRepository(db, nil)
	records := repository.NewRecordRepository(db, nil)

	deps := Deps{
		Registry:   reg,
		Reconciler: rec,
		Jobs:       jobs,
		Records:    records,
		Export:     export.NewService(records, nil),
		DB:         db,
		UploadDir:  t.TempDir(),
	}
	if withPipeline {
		proc := pipeline.NewProcessor(nil, reg, stubText{}, stubLLM{refined: refined}, rec, jobs, records, nil)
		q := async.NewProcessorQueue(proc, nil, async.WithWorkers(1))
		t.Cleanup(func() { q.Shutdown(context.Background()) })
		deps.Processor, deps.Queue = proc, q
	}
	return &testEnv{
		router:    NewHTTPServer(deps, nil).Handler(),
		jobs:      jobs,
		queue:     deps.Queue,
		uploadDir: deps.UploadDir,
	}
}

func uploadsLeft(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type part struct {
	field, name, content string
}

func multipartRequest(t *testing.T, target string, form map[string]string, files ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range form {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, w.Body.String())
	return e["code"].(string)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, refinedB, false)
	w := serve(env.router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestListCustomers(t *testing.T) {
	env := newTestEnv(t, refinedB, false)
	w := serve(env.router, httptest.NewRequest(http.MethodGet, "/api/customers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Customers []customerView `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	var codes []string
	for _, c := range body.Customers {
		codes = append(codes, c.Code)
	}
	assert.Equal(t, profiles.Builtin().Codes(), codes)
}

func TestCustomerShipTo(t *testing.T) {
	env := newTestEnv(t, refinedB, false)

	w := serve(env.router, httptest.NewRequest(http.MethodGet, "/api/customer-ship-to/b", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "B", body["customer"])
	shipTo := body["ship_to"].([]any)
	require.Len(t, shipTo, 2)
	assert.Equal(t, "bsh_1", shipTo[0].(map[string]any)["code"])

	w = serve(env.router, httptest.NewRequest(http.MethodGet, "/api/customer-ship-to/XYZ", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNRECOGNIZED_CUSTOMER", errorCode(t, w))
}

func TestProcessPurchaseOrder(t *testing.T) {
	env := newTestEnv(t, refinedB, true)

	req := multipartRequest(t, "/api/process-purchase-order", map[string]string{"customer": "B"},
		part{"file", "po.pdf", "%PDF-1.4 one"})
	w := serve(env.router, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "B", res.Customer)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "997.913", res.Records[0]["Quantity"])
	assert.Equal(t, "bsh_1", res.Records[0]["Deliver to"])
	assert.Empty(t, uploadsLeft(t, env.uploadDir))

	// a repeat is answered from the stored job and its copy is dropped too
	w = serve(env.router, multipartRequest(t, "/api/process-purchase-order", map[string]string{"customer": "B"},
		part{"file", "again.pdf", "%PDF-1.4 one"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, uploadsLeft(t, env.uploadDir))
}

func TestProcessPurchaseOrderDefaultsToBA(t *testing.T) {
	env := newTestEnv(t, refinedB, true)

	w := serve(env.router, multipartRequest(t, "/api/process-purchase-order", nil, part{"file", "po.pdf", "%PDF ba"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "BA", decode(t, w)["customer"])
}

func TestProcessDefaultPurchaseOrder(t *testing.T) {
	env := newTestEnv(t, refinedB, true)

	w := serve(env.router, multipartRequest(t, "/api/process-default-purchase-order", nil, part{"file", "po.pdf", "%PDF d"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "DEFAULT", res.Customer)
	// normalization only: no ship-to lookup, no sold-to
	assert.Equal(t, "MAGA1 Warehouse, 123 Main St", res.Records[0]["Deliver to"])
	assert.Equal(t, "997.913", res.Records[0]["Quantity"])
}

func TestProcessPurchaseOrderRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, refinedB, true)

	w := serve(env.router, multipartRequest(t, "/api/process-purchase-order", map[string]string{"customer": "B"},
		part{"file", "po.docx", "nope"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_UPLOAD", errorCode(t, w))

	w = serve(env.router, multipartRequest(t, "/api/process-purchase-order", map[string]string{"customer": "QQ"},
		part{"file", "po.pdf", "x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNRECOGNIZED_CUSTOMER", errorCode(t, w))

	w = serve(env.router, multipartRequest(t, "/api/process-purchase-order", map[string]string{"customer": "B"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessPurchaseOrderUnparseableModelOutput(t *testing.T) {
	env := newTestEnv(t, "sorry, no JSON here", true)

	w := serve(env.router, multipartRequest(t, "/api/process-purchase-order", map[string]string{"customer": "B"},
		part{"file", "po.pdf", "%PDF bad"}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EXTRACTION_FORMAT", errorCode(t, w))
	assert.Empty(t, uploadsLeft(t, env.uploadDir))
}

func TestProcessPurchaseOrders(t *testing.T) {
	env := newTestEnv(t, refinedB, true)

	req := multipartRequest(t, "/api/process-purchase-orders", map[string]string{"customer": "B"},
		part{"files", "a.pdf", "%PDF a"},
		part{"files", "b.txt", "text"},
		part{"files", "a.pdf", "%PDF a2"},
	)
	w := serve(env.router, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	results := decode(t, w)["results"].(map[string]any)
	require.Len(t, results, 3)
	assert.Contains(t, results["a.pdf"], "result")
	assert.Contains(t, results["a.pdf (2)"], "result")
	bad := results["b.txt"].(map[string]any)
	assert.Equal(t, "INVALID_UPLOAD", bad["error"].(map[string]any)["code"])
	assert.Empty(t, uploadsLeft(t, env.uploadDir))
}

func TestProcessWithoutPipelineIsUnavailable(t *testing.T) {
	env := newTestEnv(t, refinedB, false)
	w := serve(env.router, multipartRequest(t, "/api/process-purchase-order", nil, part{"file", "po.pdf", "x"}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestReconcileSingleDocument(t *testing.T) {
	env := newTestEnv(t, refinedB, false)

	w := serve(env.router, postJSON("/api/reconcile", `{"customer":"b","data":`+refinedB+`}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "B", body["customer"])
	rec := body["records"].([]any)[0].(map[string]any)
	assert.Equal(t, "997.913", rec["Quantity"])
	assert.Equal(t, "2024-04-01", rec["Required Delivery Date"])

	// fenced model text passed as a string
	fenced, _ := json.Marshal("```json\n" + refinedB + "\n```")
	w = serve(env.router, postJSON("/api/reconcile", `{"customer":"B","data":`+string(fenced)+`}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(env.router, postJSON("/api/reconcile", `{"customer":"B","data":"not json at all"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(env.router, postJSON("/api/reconcile", `{"customer":"NOPE","data":{}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileDocumentsKeyedById(t *testing.T) {
	env := newTestEnv(t, refinedB, false)

	body := `{"customer":"B","documents":[
		{"id":"ok","data":` + refinedB + `},
		{"id":"broken","data":"{{{"},
		{"id":"stranger","customer":"ZZ","data":{}}
	]}`
	w := serve(env.router, postJSON("/api/reconcile", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	results := decode(t, w)["results"].(map[string]any)
	ok := results["ok"].(map[string]any)
	assert.Equal(t, "bsh_1", ok["records"].([]any)[0].(map[string]any)["Deliver to"])
	assert.Equal(t, "EXTRACTION_FORMAT", results["broken"].(map[string]any)["error"].(map[string]any)["code"])
	assert.Equal(t, "UNRECOGNIZED_CUSTOMER", results["stranger"].(map[string]any)["error"].(map[string]any)["code"])
}

func TestReconcileDocumentsRepeatedIDKeepsBoth(t *testing.T) {
	env := newTestEnv(t, refinedB, false)

	body := `{"customer":"B","documents":[
		{"id":"po.pdf","data":` + refinedB + `},
		{"id":"po.pdf","data":"{{{"}
	]}`
	w := serve(env.router, postJSON("/api/reconcile", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	results := decode(t, w)["results"].(map[string]any)
	require.Len(t, results, 2)
	first := results["po.pdf"].(map[string]any)
	assert.Equal(t, "bsh_1", first["records"].([]any)[0].(map[string]any)["Deliver to"])
	second := results["po.pdf (2)"].(map[string]any)
	assert.Equal(t, "EXTRACTION_FORMAT", second["error"].(map[string]any)["code"])
}

func TestSubmitJobAndPoll(t *testing.T) {
	env := newTestEnv(t, refinedB, true)

	w := serve(env.router, multipartRequest(t, "/api/jobs", map[string]string{"customer": "B"}, part{"file", "po.pdf", "%PDF async"}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decode(t, w)["job"].(map[string]any)["id"].(string)

	require.Eventually(t, func() bool {
		w := serve(env.router, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
		if w.Code != http.StatusOK {
			return false
		}
		body := decode(t, w)
		return body["job"].(map[string]any)["status"] == "RECONCILED" && body["records"] != nil
	}, 5*time.Second, 20*time.Millisecond)

	// same content again is answered from the first job
	w = serve(env.router, multipartRequest(t, "/api/jobs", map[string]string{"customer": "B"}, part{"file", "again.pdf", "%PDF async"}))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, id, body["job"].(map[string]any)["id"])
	require.Eventually(t, func() bool { return len(uploadsLeft(t, env.uploadDir)) == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestSubmitJobEnqueueFailureClosesJob(t *testing.T) {
	env := newTestEnv(t, refinedB, true)
	env.queue.Shutdown(context.Background())

	w := serve(env.router, multipartRequest(t, "/api/jobs", map[string]string{"customer": "B"}, part{"file", "po.pdf", "%PDF late"}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	counts, err := env.jobs.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[constants.JobStatusFailed])
	assert.Zero(t, counts[constants.JobStatusQueued])
	assert.Empty(t, uploadsLeft(t, env.uploadDir))
}

func TestGetJobErrors(t *testing.T) {
	env := newTestEnv(t, refinedB, false)

	w := serve(env.router, httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(env.router, httptest.NewRequest(http.MethodGet, "/api/jobs/7b0c5d3e-8d0e-4f5c-9d53-0a4f0d7d8b11", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportRecords(t *testing.T) {
	env := newTestEnv(t, refinedB, true)
	w := serve(env.router, multipartRequest(t, "/api/process-purchase-order", map[string]string{"customer": "B"}, part{"file", "po.pdf", "%PDF x"}))
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(env.router, httptest.NewRequest(http.MethodGet, "/api/records/export.xlsx?customer=b", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "purchase-orders-b.xlsx")
	// xlsx is a zip container
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = serve(env.router, httptest.NewRequest(http.MethodGet, "/api/records/export.xlsx?from=04/01/2024", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(env.router, httptest.NewRequest(http.MethodGet, "/api/records/export.xlsx?customer=ZZ", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
