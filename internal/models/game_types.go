package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const MaxPromptBytes = 8 * 1024

type SubmitAttemptRequest struct {
	Prompt  string `json:"prompt" binding:"required"`
	ModelID uint64 `json:"model_id"`
	Amount  string `json:"amount" binding:"required"`
}

// Validate checks the request and returns the parsed payment.
func (r *SubmitAttemptRequest) Validate() (*big.Int, error) {
	if r.Prompt == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "prompt is empty")
	}
	if len(r.Prompt) > MaxPromptBytes {
		return nil, errors.Wrapf(ErrInvalidRequest, "prompt exceeds %d bytes", MaxPromptBytes)
	}
	return ParseAmount(r.Amount)
}

type CallbackRequest struct {
	RequestID RequestID `json:"request_id" binding:"required"`
	Output    string    `json:"output"`
}

type DeveloperWalletRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

func (r *DeveloperWalletRequest) Address() (common.Address, error) {
	if !common.IsHexAddress(r.Wallet) {
		return common.Address{}, errors.Wrapf(ErrInvalidConfiguration, "wallet %q is not an address", r.Wallet)
	}
	return common.HexToAddress(r.Wallet), nil
}

type DepositRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

func (r *DepositRequest) Validate() (common.Address, *big.Int, error) {
	if !common.IsHexAddress(r.Address) {
		return common.Address{}, nil, errors.Wrapf(ErrInvalidRequest, "%q is not an address", r.Address)
	}
	amount, err := ParseAmount(r.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return common.HexToAddress(r.Address), amount, nil
}

type MinSlippageRequest struct {
	Percent *int `json:"percent" binding:"required"`
}

type GasBudgetRequest struct {
	GasBudget uint64 `json:"gas_budget"`
}

type UpdateConfigRequest struct {
	BaseFee               string    `json:"base_fee" binding:"required"`
	FeeIncrement          string    `json:"fee_increment" binding:"required"`
	FeeCeiling            string    `json:"fee_ceiling" binding:"required"`
	DurationSeconds       int64     `json:"duration_seconds"`
	StartTime             time.Time `json:"start_time"`
	PoolSharePercent      int       `json:"pool_share_percent"`
	DeveloperSharePercent int       `json:"developer_share_percent"`
}

// ToConfig parses the amounts. The result still needs GameConfig.Validate.
func (r *UpdateConfigRequest) ToConfig() (GameConfig, error) {
	var cfg GameConfig
	fields := []struct {
		raw string
		dst **big.Int
	}{
		{r.BaseFee, &cfg.BaseFee},
		{r.FeeIncrement, &cfg.FeeIncrement},
		{r.FeeCeiling, &cfg.FeeCeiling},
	}
	for _, f := range fields {
		v, err := ParseAmount(f.raw)
		if err != nil {
			return GameConfig{}, errors.Wrap(ErrInvalidConfiguration, err.Error())
		}
		*f.dst = v
	}
	cfg.Duration = time.Duration(r.DurationSeconds) * time.Second
	cfg.StartTime = r.StartTime
	cfg.PoolSharePercent = r.PoolSharePercent
	cfg.DeveloperSharePercent = r.DeveloperSharePercent
	return cfg, nil
}

type AttemptView struct {
	Player      common.Address  `json:"player"`
	Sequence    uint64          `json:"sequence"`
	RequestID   RequestID       `json:"request_id"`
	Fee         decimal.Decimal `json:"fee"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Score       Score           `json:"score"`
	Won         bool            `json:"won"`
	Failed      bool            `json:"failed"`
	Refunded    bool            `json:"refunded"`
}

func NewAttemptView(a *Attempt) AttemptView {
	return AttemptView{
		Player:      a.Player,
		Sequence:    a.Sequence,
		RequestID:   a.RequestID,
		Fee:         NewAmount(a.Fee),
		SubmittedAt: a.SubmittedAt,
		Score:       a.Score,
		Won:         a.Won,
		Failed:      a.Failed,
		Refunded:    a.Refunded,
	}
}

// Quote is what a participant must attach to enter right now.
type Quote struct {
	ModelID         uint64   `json:"model_id"`
	EntryFee        *big.Int `json:"-"`
	OracleFee       *big.Int `json:"-"`
	Required        *big.Int `json:"-"`
	MinWithSlippage *big.Int `json:"-"`
	SlippagePercent int      `json:"slippage_percent"`
}

type QuoteView struct {
	ModelID         uint64          `json:"model_id"`
	EntryFee        decimal.Decimal `json:"entry_fee"`
	OracleFee       decimal.Decimal `json:"oracle_fee"`
	Required        decimal.Decimal `json:"required"`
	MinWithSlippage decimal.Decimal `json:"min_with_slippage"`
	SlippagePercent int             `json:"slippage_percent"`
}

func NewQuoteView(q *Quote) QuoteView {
	return QuoteView{
		ModelID:         q.ModelID,
		EntryFee:        NewAmount(q.EntryFee),
		OracleFee:       NewAmount(q.OracleFee),
		Required:        NewAmount(q.Required),
		MinWithSlippage: NewAmount(q.MinWithSlippage),
		SlippagePercent: q.SlippagePercent,
	}
}

type GameStats struct {
	Pool              *big.Int
	InitialPool       *big.Int
	CurrentFee        *big.Int
	TotalAttempts     uint64
	TotalParticipants uint64
	Winner            *common.Address
	StartTime         time.Time
	EndTime           time.Time
	Open              bool
}

type GameStatsView struct {
	Pool              decimal.Decimal `json:"pool"`
	InitialPool       decimal.Decimal `json:"initial_pool"`
	CurrentFee        decimal.Decimal `json:"current_fee"`
	TotalAttempts     uint64          `json:"total_attempts"`
	TotalParticipants uint64          `json:"total_participants"`
	Winner            *common.Address `json:"winner,omitempty"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	Open              bool            `json:"open"`
}

func NewGameStatsView(s *GameStats) GameStatsView {
	return GameStatsView{
		Pool:              NewAmount(s.Pool),
		InitialPool:       NewAmount(s.InitialPool),
		CurrentFee:        NewAmount(s.CurrentFee),
		TotalAttempts:     s.TotalAttempts,
		TotalParticipants: s.TotalParticipants,
		Winner:            s.Winner,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		Open:              s.Open,
	}
}
