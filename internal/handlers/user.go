package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"promptpot-backend/internal/middleware"
	"promptpot-backend/internal/models"
	"promptpot-backend/internal/services"
)

type UserHandler struct {
	ledger *services.GameLedger
	vault  services.Vault
}

func NewUserHandler(ledger *services.GameLedger, vault services.Vault) *UserHandler {
	return &UserHandler{
		ledger: ledger,
		vault:  vault,
	}
}

// GetCurrentUser summarizes the caller's standing in the game.
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	role, _ := c.Get(middleware.ContextRole)

	balance, err := h.vault.BalanceOf(c.Request.Context(), caller)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get balance",
			"details": err.Error(),
		})
		return
	}

	attempts := h.ledger.Attempts(caller)
	pending, refundable := 0, 0
	for _, a := range attempts {
		if a.Score.Pending() {
			pending++
		}
		if !a.Refunded {
			refundable++
		}
	}
	winner, hasWinner := h.ledger.Winner()

	c.JSON(http.StatusOK, gin.H{
		"address":          caller,
		"role":             role,
		"is_admin":         caller == h.ledger.Admin(),
		"is_winner":        hasWinner && winner == caller,
		"balance":          models.NewAmount(balance),
		"attempts":         len(attempts),
		"pending_attempts": pending,
		"refund_eligible":  h.ledger.Closed() && !hasWinner && refundable > 0,
	})
}
