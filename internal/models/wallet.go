package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LedgerSnapshot is the full persisted state of a game. Attempt counts are
// the lengths of the per-player attempt lists.
type LedgerSnapshot struct {
	Admin              common.Address                `json:"admin"`
	DeveloperWallet    common.Address                `json:"developer_wallet"`
	Config             GameConfig                    `json:"config"`
	CurrentFee         *big.Int                      `json:"current_fee"`
	MinSlippagePercent int                           `json:"min_slippage_percent"`
	GasBudgets         map[uint64]uint64             `json:"gas_budgets"`
	SystemPrompt       string                        `json:"system_prompt"`
	Pool               *big.Int                      `json:"pool"`
	InitialPool        *big.Int                      `json:"initial_pool"`
	TotalAttempts      uint64                        `json:"total_attempts"`
	TotalParticipants  uint64                        `json:"total_participants"`
	Winner             common.Address                `json:"winner"`
	WinnerQuery        *Attempt                      `json:"winner_query,omitempty"`
	Attempts           map[common.Address][]*Attempt `json:"attempts"`
	Requests           map[RequestID]*OracleRequest  `json:"requests"`
	SavedAt            time.Time                     `json:"saved_at"`
}

type BalanceResponse struct {
	Address common.Address  `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

type RefundResponse struct {
	Player common.Address  `json:"player"`
	Amount decimal.Decimal `json:"amount"`
}
