package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cloudkb/src/core/kb"
)

type chatRequest struct {
	TenantID   string `json:"tenant_id" binding:"required"`
	CustomerID string `json:"customer_id"`
	Message    string `json:"message" binding:"required"`
}

type chatResponse struct {
	Response         string           `json:"response"`
	SourcesCount     int              `json:"sources_count"`
	ConfidenceScores []float32        `json:"confidence_scores"`
	SourceDocuments  []kb.ScoredChunk `json:"source_documents,omitempty"`
	Degraded         bool             `json:"degraded,omitempty"`
}

// Chat godoc
// @Summary Ask a question against the tenant's knowledge base
// @Tags chat
// @Accept json
// @Produce json
// @Param body body chatRequest true "Chat parameters"
// @Success 200 {object} chatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /chat [post]
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	result, err := h.querySvc.Query(c.Request.Context(), kb.QueryRequest{
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		Query:      req.Message,
	})
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, chatResponse{
		Response:         result.Answer.Answer,
		SourcesCount:     result.SourcesCount,
		ConfidenceScores: result.ConfidenceScores,
		SourceDocuments:  result.Results,
		Degraded:         result.Degraded,
	})
}
