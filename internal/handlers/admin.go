package handlers

import (
	"context"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"promptpot-backend/internal/middleware"
	"promptpot-backend/internal/models"
)

// Depositor credits vault accounts directly. Both vaults implement it.
type Depositor interface {
	Deposit(ctx context.Context, addr common.Address, amount *big.Int) error
}

func (h *GameHandler) SetDeveloperWallet(c *gin.Context) {
	caller, _ := middleware.Caller(c)

	var req models.DeveloperWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	wallet, err := req.Address()
	if err != nil {
		respondError(c, "Invalid request", err)
		return
	}

	if err := h.ledger.SetDeveloperWallet(caller, wallet); err != nil {
		respondError(c, "Failed to update developer wallet", err)
		return
	}
	h.persist(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"developer_wallet": wallet,
	})
}

func (h *GameHandler) SetMinSlippage(c *gin.Context) {
	caller, _ := middleware.Caller(c)

	var req models.MinSlippageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.ledger.SetMinSlippagePercent(caller, *req.Percent); err != nil {
		respondError(c, "Failed to update slippage", err)
		return
	}
	h.persist(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"min_slippage_percent": *req.Percent,
	})
}

func (h *GameHandler) SetGasBudget(c *gin.Context) {
	caller, _ := middleware.Caller(c)

	modelID, err := strconv.ParseUint(c.Param("model"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"code":    models.ErrInvalidRequest.Code,
			"details": "model must be an unsigned integer",
		})
		return
	}

	var req models.GasBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.ledger.SetCallbackGasBudget(caller, modelID, req.GasBudget); err != nil {
		respondError(c, "Failed to update gas budget", err)
		return
	}
	h.persist(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"model_id":   modelID,
		"gas_budget": req.GasBudget,
	})
}

func (h *GameHandler) UpdateConfig(c *gin.Context) {
	caller, _ := middleware.Caller(c)

	var req models.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cfg, err := req.ToConfig()
	if err != nil {
		respondError(c, "Invalid request", err)
		return
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = h.ledger.Config().StartTime
	}

	if err := h.ledger.UpdateConfig(caller, cfg); err != nil {
		respondError(c, "Failed to update config", err)
		return
	}
	h.persist(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  models.NewConfigView(h.ledger.Config()),
	})
}

// Deposit funds an account in the vault. Only mounted outside production.
func (h *GameHandler) Deposit(c *gin.Context) {
	depositor, ok := h.vault.(Depositor)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Vault does not accept deposits"})
		return
	}

	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	addr, amount, err := req.Validate()
	if err != nil {
		respondError(c, "Invalid request", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := depositor.Deposit(ctx, addr, amount); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to deposit",
			"details": err.Error(),
		})
		return
	}
	balance, err := h.vault.BalanceOf(ctx, addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get balance",
			"details": err.Error(),
		})
		return
	}

	log.Infow("deposit", "address", addr.Hex(), "amount", amount.String())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": models.BalanceResponse{
			Address: addr,
			Balance: models.NewAmount(balance),
		},
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"code":    models.ErrInvalidRequest.Code,
		"details": err.Error(),
	})
}
