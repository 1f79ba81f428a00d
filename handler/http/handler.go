package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cloudkb/src/core/kb"
	"cloudkb/src/infrastructure/job"
	"cloudkb/src/log"
)

// QueryRunner runs the retrieval and answer-synthesis pipeline
type QueryRunner interface {
	Query(ctx context.Context, req kb.QueryRequest) (*kb.QueryResult, error)
}

// IngestQueue enqueues background ingestion jobs
type IngestQueue interface {
	EnqueueIngest(ctx context.Context, tenantID, documentKey string) (*job.Job, error)
}

// Presigner issues time-limited upload credentials
type Presigner interface {
	PresignedPutURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

type Handler struct {
	querySvc QueryRunner
	jobs     IngestQueue
	jobRepo  job.Repository
	presign  Presigner
	registry *kb.TenantRegistry
}

func NewHandler(querySvc QueryRunner, jobs IngestQueue, jobRepo job.Repository, presign Presigner, registry *kb.TenantRegistry) *Handler {
	return &Handler{
		querySvc: querySvc,
		jobs:     jobs,
		jobRepo:  jobRepo,
		presign:  presign,
		registry: registry,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.CheckHealth)

	r.POST("/kb/query", h.Query)
	r.POST("/kb/upload-url", h.UploadURL)
	r.POST("/kb/sync", h.Sync)
	r.GET("/kb/ingestion-status", h.IngestionStatus)

	r.POST("/chat", h.Chat)
}

// Common error response structure
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError maps pipeline errors onto HTTP outcomes. Upstream failures get a
// generic message so partition names and raw store errors never leak to
// clients; the detail goes to the server log only.
func sendError(c *gin.Context, err error) {
	if verr, ok := kb.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    string(verr.Kind),
			Message: verr.Message,
		})
		return
	}

	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, kb.ErrTenantNotConfigured):
		status = http.StatusForbidden
		code = "TENANT_NOT_CONFIGURED"
	case errors.Is(err, kb.ErrEmbeddingUnavailable):
		status = http.StatusInternalServerError
		code = "EMBEDDING_UNAVAILABLE"
	case errors.Is(err, kb.ErrStoreUnavailable):
		status = http.StatusInternalServerError
		code = "STORE_UNAVAILABLE"
	case errors.Is(err, kb.ErrDimensionMismatch), errors.Is(err, kb.ErrSchemaMismatch):
		status = http.StatusInternalServerError
		code = "STORE_MISCONFIGURED"
	default:
		status = http.StatusInternalServerError
		code = "INTERNAL_ERROR"
	}

	log.Error(err, "request failed", "code", code)
	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: "request could not be completed",
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
