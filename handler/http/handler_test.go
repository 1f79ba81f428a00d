package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	handler "cloudkb/handler/http"
	"cloudkb/src/core/kb"
	"cloudkb/src/infrastructure/job"
)

type fakeQueryRunner struct {
	result *kb.QueryResult
	err    error
	last   kb.QueryRequest
}

func (f *fakeQueryRunner) Query(_ context.Context, req kb.QueryRequest) (*kb.QueryResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeIngestQueue struct {
	queued *job.Job
	err    error
}

func (f *fakeIngestQueue) EnqueueIngest(_ context.Context, tenantID, documentKey string) (*job.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.queued, nil
}

type fakeJobRepo struct {
	jobs map[int64]*job.Job
}

func (f *fakeJobRepo) Create(_ context.Context, j *job.Job) error { return nil }

func (f *fakeJobRepo) Get(_ context.Context, id int64) (*job.Job, error) {
	return f.jobs[id], nil
}

func (f *fakeJobRepo) UpdateStatus(_ context.Context, id int64, status job.JobStatus, errMsg *string) error {
	return nil
}

func (f *fakeJobRepo) SetResult(_ context.Context, id int64, result json.RawMessage) error {
	return nil
}

type fakePresigner struct {
	url string
	err error

	bucket string
	key    string
}

func (f *fakePresigner) PresignedPutURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	f.bucket = bucket
	f.key = key
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func newTestRouter(query *fakeQueryRunner, jobs *fakeIngestQueue, repo *fakeJobRepo, presign *fakePresigner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	registry := kb.NewTenantRegistry([]string{"acme", "globex", "initech", "umbrella"}, "cloudkb-%s")
	h := handler.NewHandler(query, jobs, repo, presign, registry)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestQueryEndpoint(t *testing.T) {
	query := &fakeQueryRunner{
		result: &kb.QueryResult{
			Answer: kb.Answer{
				Answer:           "Acme is in phase 3.",
				SourcesCount:     1,
				ConfidenceScores: []float32{0.95},
			},
			Results: []kb.ScoredChunk{{ID: "c1", Text: "phase 3", Score: 0.95}},
		},
	}
	r := newTestRouter(query, &fakeIngestQueue{}, &fakeJobRepo{}, &fakePresigner{})

	w := postJSON(t, r, "/kb/query", gin.H{
		"tenant_id":   "acme",
		"customer_id": "cust_1",
		"query":       "what phase are we in?",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp kb.QueryResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer.Answer != "Acme is in phase 3." || resp.SourcesCount != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if query.last.TenantID != "acme" || query.last.CustomerID != "cust_1" {
		t.Errorf("request not forwarded: %+v", query.last)
	}
}

func TestQueryEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation error",
			err:        &kb.ValidationError{Kind: kb.InvalidTenantFormat, Message: "tenant_id has invalid format"},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(kb.InvalidTenantFormat),
		},
		{
			name:       "unknown tenant",
			err:        kb.ErrTenantNotConfigured,
			wantStatus: http.StatusForbidden,
			wantCode:   "TENANT_NOT_CONFIGURED",
		},
		{
			name:       "embedding outage",
			err:        kb.ErrEmbeddingUnavailable,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "EMBEDDING_UNAVAILABLE",
		},
		{
			name:       "store outage",
			err:        kb.ErrStoreUnavailable,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "STORE_UNAVAILABLE",
		},
		{
			name:       "schema drift",
			err:        kb.ErrSchemaMismatch,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "STORE_MISCONFIGURED",
		},
		{
			name:       "unclassified failure",
			err:        errors.New("something odd"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeQueryRunner{err: tt.err}, &fakeIngestQueue{}, &fakeJobRepo{}, &fakePresigner{})

			w := postJSON(t, r, "/kb/query", gin.H{
				"tenant_id": "acme",
				"query":     "what phase are we in?",
			})

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestQueryEndpointDoesNotLeakDetail(t *testing.T) {
	r := newTestRouter(
		&fakeQueryRunner{err: errors.New("dial tcp 10.0.0.5:5432: connection refused")},
		&fakeIngestQueue{}, &fakeJobRepo{}, &fakePresigner{},
	)

	w := postJSON(t, r, "/kb/query", gin.H{"tenant_id": "acme", "query": "a valid question"})

	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("internal detail leaked to the client: %s", w.Body.String())
	}
}

func TestQueryEndpointRejectsMissingFields(t *testing.T) {
	r := newTestRouter(&fakeQueryRunner{}, &fakeIngestQueue{}, &fakeJobRepo{}, &fakePresigner{})

	w := postJSON(t, r, "/kb/query", gin.H{"tenant_id": "acme"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	query := &fakeQueryRunner{
		result: &kb.QueryResult{
			Answer: kb.Answer{
				Answer:           "I don't know. I couldn't find any relevant information in the knowledge base.",
				SourcesCount:     0,
				ConfidenceScores: []float32{},
			},
		},
	}
	r := newTestRouter(query, &fakeIngestQueue{}, &fakeJobRepo{}, &fakePresigner{})

	w := postJSON(t, r, "/chat", gin.H{
		"tenant_id": "acme",
		"message":   "anything written down about Q4?",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["sources_count"] != float64(0) {
		t.Errorf("sources_count = %v, want 0", resp["sources_count"])
	}
	if query.last.Query != "anything written down about Q4?" {
		t.Errorf("message not forwarded as the query: %q", query.last.Query)
	}
}

func TestUploadURLEndpoint(t *testing.T) {
	presign := &fakePresigner{url: "https://minio.local/presigned"}
	r := newTestRouter(&fakeQueryRunner{}, &fakeIngestQueue{}, &fakeJobRepo{}, presign)

	w := postJSON(t, r, "/kb/upload-url", gin.H{
		"tenant_id": "acme",
		"filename":  "q3 report.pdf",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		UploadURL   string `json:"upload_url"`
		DocumentKey string `json:"document_key"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.UploadURL != "https://minio.local/presigned" {
		t.Errorf("upload_url = %q", resp.UploadURL)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", resp.ExpiresIn)
	}
	if !strings.HasPrefix(resp.DocumentKey, "documents/") || !strings.HasSuffix(resp.DocumentKey, "_q3_report.pdf") {
		t.Errorf("document_key = %q", resp.DocumentKey)
	}
	if presign.bucket != "cloudkb-acme" {
		t.Errorf("presigned against bucket %q, want cloudkb-acme", presign.bucket)
	}
}

func TestUploadURLUnknownTenant(t *testing.T) {
	r := newTestRouter(&fakeQueryRunner{}, &fakeIngestQueue{}, &fakeJobRepo{}, &fakePresigner{})

	w := postJSON(t, r, "/kb/upload-url", gin.H{
		"tenant_id": "wayne",
		"filename":  "report.pdf",
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body = %s", w.Code, w.Body.String())
	}
}

func TestSyncEndpoint(t *testing.T) {
	jobs := &fakeIngestQueue{
		queued: &job.Job{ID: 7124569098123411456, Status: job.JobStatusPending},
	}
	r := newTestRouter(&fakeQueryRunner{}, jobs, &fakeJobRepo{}, &fakePresigner{})

	w := postJSON(t, r, "/kb/sync", gin.H{
		"tenant_id":    "acme",
		"document_key": "documents/20260830_120000_ab12cd34_handbook.md",
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobID != "7124569098123411456" {
		t.Errorf("job_id = %q", resp.JobID)
	}
	if resp.Status != "pending" {
		t.Errorf("status = %q, want pending", resp.Status)
	}
}

func TestSyncUnknownTenant(t *testing.T) {
	r := newTestRouter(&fakeQueryRunner{}, &fakeIngestQueue{}, &fakeJobRepo{}, &fakePresigner{})

	w := postJSON(t, r, "/kb/sync", gin.H{
		"tenant_id":    "wayne",
		"document_key": "documents/x",
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body = %s", w.Code, w.Body.String())
	}
}

func TestIngestionStatusEndpoint(t *testing.T) {
	repo := &fakeJobRepo{jobs: map[int64]*job.Job{
		42: {ID: 42, Status: job.JobStatusCompleted, TenantID: "acme"},
	}}
	r := newTestRouter(&fakeQueryRunner{}, &fakeIngestQueue{}, repo, &fakePresigner{})

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"existing job", "/kb/ingestion-status?job_id=42", http.StatusOK},
		{"missing job", "/kb/ingestion-status?job_id=99", http.StatusNotFound},
		{"missing parameter", "/kb/ingestion-status", http.StatusBadRequest},
		{"non-numeric id", "/kb/ingestion-status?job_id=abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(&fakeQueryRunner{}, &fakeIngestQueue{}, &fakeJobRepo{}, &fakePresigner{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
