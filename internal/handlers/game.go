package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	logging "github.com/ipfs/go-log/v2"

	"promptpot-backend/internal/middleware"
	"promptpot-backend/internal/models"
	"promptpot-backend/internal/services"
)

var log = logging.Logger("api")

type GameHandler struct {
	ledger *services.GameLedger
	vault  services.Vault
	store  services.SnapshotStore
	events services.EventReader
}

// NewGameHandler serves the game. store and events may be nil, in which case
// nothing is persisted and the event history is empty.
func NewGameHandler(ledger *services.GameLedger, vault services.Vault, store services.SnapshotStore, events services.EventReader) *GameHandler {
	return &GameHandler{
		ledger: ledger,
		vault:  vault,
		store:  store,
		events: events,
	}
}

func (h *GameHandler) GetGame(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"game":                 models.NewGameStatsView(h.ledger.Stats()),
		"admin":                h.ledger.Admin(),
		"developer_wallet":     h.ledger.DeveloperWallet(),
		"min_slippage_percent": h.ledger.MinSlippagePercent(),
		"pending_requests":     len(h.ledger.PendingRequests()),
	})
}

func (h *GameHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  models.NewConfigView(h.ledger.Config()),
	})
}

func (h *GameHandler) GetQuote(c *gin.Context) {
	modelID, err := strconv.ParseUint(c.Query("model"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"code":    models.ErrInvalidRequest.Code,
			"details": "model must be an unsigned integer",
		})
		return
	}

	quote, err := h.ledger.Quote(c.Request.Context(), modelID)
	if err != nil {
		respondError(c, "Failed to quote", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"quote":      models.NewQuoteView(quote),
		"gas_budget": h.ledger.CallbackGasBudget(modelID),
	})
}

func (h *GameHandler) GetWinner(c *gin.Context) {
	winner, ok := h.ledger.Winner()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"winner":  nil,
		})
		return
	}

	resp := gin.H{
		"success": true,
		"winner":  winner,
	}
	if q := h.ledger.WinnerQuery(); q != nil {
		resp["attempt"] = models.NewAttemptView(q)
		if req, ok := h.ledger.Request(q.RequestID); ok {
			resp["prompt"] = req.Prompt
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GameHandler) GetEvents(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 || limit > services.EventJournalSize {
		limit = 50
	}

	if h.events == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "events": []interface{}{}, "count": 0})
		return
	}

	events, err := h.events.GetEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get events",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

// GetAttempt looks an attempt up by its oracle request id, so clients can
// poll for the score after submitting.
func (h *GameHandler) GetAttempt(c *gin.Context) {
	id := models.RequestID(c.Param("request_id"))
	attempt, ok := h.ledger.AttemptByRequest(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Attempt not found",
			"code":  models.ErrRequestNotFound.Code,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"attempt": models.NewAttemptView(attempt),
	})
}

func (h *GameHandler) SubmitAttempt(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"code":    models.ErrInvalidRequest.Code,
			"details": err.Error(),
		})
		return
	}
	amount, err := req.Validate()
	if err != nil {
		respondError(c, "Invalid request", err)
		return
	}

	attempt, err := h.ledger.SubmitAttempt(c.Request.Context(), caller, req.Prompt, req.ModelID, amount)
	if err != nil {
		respondError(c, "Failed to submit attempt", err)
		return
	}
	h.persist(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"attempt": models.NewAttemptView(attempt),
	})
}

func (h *GameHandler) GetAttempts(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	attempts := h.ledger.Attempts(caller)
	response := make([]models.AttemptView, 0, len(attempts))
	for _, a := range attempts {
		response = append(response, models.NewAttemptView(a))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"attempts": response,
		"count":    len(response),
	})
}

func (h *GameHandler) ClaimRefund(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	amount, err := h.ledger.ClaimRefund(c.Request.Context(), caller)
	// A failed payout still marks the attempts refunded, so persist either way.
	if err == nil || models.KindOf(err) == models.KindTransfer {
		h.persist(c.Request.Context())
	}
	if err != nil {
		respondError(c, "Failed to claim refund", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"refund": models.RefundResponse{
			Player: caller,
			Amount: models.NewAmount(amount),
		},
	})
}

func (h *GameHandler) GetBalance(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	balance, err := h.vault.BalanceOf(c.Request.Context(), caller)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get balance",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": models.BalanceResponse{
			Address: caller,
			Balance: models.NewAmount(balance),
		},
	})
}

func (h *GameHandler) persist(ctx context.Context) {
	if h.store == nil {
		return
	}
	if err := h.store.SaveSnapshot(ctx, h.ledger.Snapshot()); err != nil {
		log.Warnw("snapshot not saved", "err", err)
	}
}

func respondError(c *gin.Context, message string, err error) {
	status := statusFor(models.KindOf(err))
	if status >= http.StatusInternalServerError {
		log.Errorw(message, "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{
		"error":   message,
		"code":    models.CodeOf(err),
		"details": err.Error(),
	})
}

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindAuthorization:
		return http.StatusForbidden
	case models.KindState, models.KindIntegrity:
		return http.StatusConflict
	case models.KindTransfer, models.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
