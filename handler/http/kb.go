package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cloudkb/src/core/kb"
)

const uploadURLExpiry = time.Hour

type queryRequest struct {
	TenantID   string `json:"tenant_id" binding:"required"`
	CustomerID string `json:"customer_id"`
	Query      string `json:"query" binding:"required"`
}

// Query godoc
// @Summary Query the tenant's knowledge base
// @Tags kb
// @Accept json
// @Produce json
// @Param body body queryRequest true "Query parameters"
// @Success 200 {object} kb.QueryResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /kb/query [post]
func (h *Handler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	result, err := h.querySvc.Query(c.Request.Context(), kb.QueryRequest{
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		Query:      req.Query,
	})
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, result)
}

type uploadURLRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Filename string `json:"filename" binding:"required"`
}

type uploadURLResponse struct {
	UploadURL   string `json:"upload_url"`
	DocumentKey string `json:"document_key"`
	ExpiresIn   int    `json:"expires_in"`
}

// UploadURL godoc
// @Summary Issue a time-limited upload credential for a document
// @Tags kb
// @Accept json
// @Produce json
// @Param body body uploadURLRequest true "Upload parameters"
// @Success 200 {object} uploadURLResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /kb/upload-url [post]
func (h *Handler) UploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	if err := kb.ValidateIdentifiers(req.TenantID, ""); err != nil {
		sendError(c, err)
		return
	}

	bucket, err := h.registry.Bucket(req.TenantID)
	if err != nil {
		sendError(c, err)
		return
	}

	key := documentKey(req.Filename)
	url, err := h.presign.PresignedPutURL(c.Request.Context(), bucket, key, uploadURLExpiry)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, uploadURLResponse{
		UploadURL:   url,
		DocumentKey: key,
		ExpiresIn:   int(uploadURLExpiry.Seconds()),
	})
}

type syncRequest struct {
	TenantID    string `json:"tenant_id" binding:"required"`
	DocumentKey string `json:"document_key" binding:"required"`
}

type syncResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Sync godoc
// @Summary Enqueue ingestion of an uploaded document
// @Tags kb
// @Accept json
// @Produce json
// @Param body body syncRequest true "Sync parameters"
// @Success 202 {object} syncResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /kb/sync [post]
func (h *Handler) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	if err := kb.ValidateIdentifiers(req.TenantID, ""); err != nil {
		sendError(c, err)
		return
	}
	if _, err := h.registry.Bucket(req.TenantID); err != nil {
		sendError(c, err)
		return
	}

	queued, err := h.jobs.EnqueueIngest(c.Request.Context(), req.TenantID, req.DocumentKey)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusAccepted, syncResponse{
		JobID:  strconv.FormatInt(queued.ID, 10),
		Status: string(queued.Status),
	})
}

// IngestionStatus godoc
// @Summary Get the status of an ingestion job
// @Tags kb
// @Param job_id query string true "Ingestion job ID"
// @Produce json
// @Success 200 {object} job.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /kb/ingestion-status [get]
func (h *Handler) IngestionStatus(c *gin.Context) {
	rawID := c.Query("job_id")
	if rawID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "job_id is required"})
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "job_id must be numeric"})
		return
	}

	queued, err := h.jobRepo.Get(c.Request.Context(), id)
	if err != nil {
		sendError(c, err)
		return
	}
	if queued == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "job not found"})
		return
	}

	sendJSON(c, http.StatusOK, queued)
}

// documentKey builds a collision-resistant object key with an embedded UTC
// timestamp and a random suffix.
func documentKey(filename string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("documents/%s_%s_%s", timestamp, suffix, kb.SanitizeFilename(filename))
}
