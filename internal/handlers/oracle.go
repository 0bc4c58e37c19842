package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"promptpot-backend/internal/middleware"
	"promptpot-backend/internal/models"
)

// OracleCallback receives a score from an external oracle. The token must
// belong to the oracle's address; the ledger rejects anyone else.
func (h *GameHandler) OracleCallback(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Oracle not authenticated"})
		return
	}

	var req models.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"code":    models.ErrInvalidRequest.Code,
			"details": err.Error(),
		})
		return
	}

	attempt, err := h.ledger.DeliverResult(c.Request.Context(), caller, req.RequestID, []byte(req.Output))
	if err != nil {
		respondError(c, "Failed to deliver result", err)
		return
	}
	h.persist(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"attempt": models.NewAttemptView(attempt),
	})
}
