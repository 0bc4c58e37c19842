package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventGameLaunched             EventType = "GAME_LAUNCHED"
	EventPlayerAttempted          EventType = "PLAYER_ATTEMPTED"
	EventPlayerAttemptResult      EventType = "PLAYER_ATTEMPT_RESULT"
	EventWinnerAnnouncement       EventType = "WINNER_ANNOUNCEMENT"
	EventPlayerRefunded           EventType = "PLAYER_REFUNDED"
	EventConfigUpdated            EventType = "CONFIG_UPDATED"
	EventDeveloperWalletUpdated   EventType = "DEVELOPER_WALLET_UPDATED"
	EventMinSlippageUpdated       EventType = "MIN_SLIPPAGE_UPDATED"
	EventCallbackGasBudgetUpdated EventType = "CALLBACK_GAS_BUDGET_UPDATED"
	EventGameClosed               EventType = "GAME_CLOSED"
)

// Event is a one-way notification of a committed state transition.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(typ EventType, at time.Time, data interface{}) *Event {
	return &Event{
		ID:        GenerateEventID(at),
		Type:      typ,
		Timestamp: at,
		Data:      data,
	}
}

type ConfigView struct {
	BaseFee               decimal.Decimal `json:"base_fee"`
	FeeIncrement          decimal.Decimal `json:"fee_increment"`
	FeeCeiling            decimal.Decimal `json:"fee_ceiling"`
	DurationSeconds       int64           `json:"duration_seconds"`
	StartTime             time.Time       `json:"start_time"`
	EndTime               time.Time       `json:"end_time"`
	PoolSharePercent      int             `json:"pool_share_percent"`
	DeveloperSharePercent int             `json:"developer_share_percent"`
}

func NewConfigView(c GameConfig) ConfigView {
	return ConfigView{
		BaseFee:               NewAmount(c.BaseFee),
		FeeIncrement:          NewAmount(c.FeeIncrement),
		FeeCeiling:            NewAmount(c.FeeCeiling),
		DurationSeconds:       int64(c.Duration.Seconds()),
		StartTime:             c.StartTime,
		EndTime:               c.EndTime(),
		PoolSharePercent:      c.PoolSharePercent,
		DeveloperSharePercent: c.DeveloperSharePercent,
	}
}

type GameLaunchedData struct {
	Config      ConfigView      `json:"config"`
	InitialPool decimal.Decimal `json:"initial_pool"`
}

type PlayerAttemptedData struct {
	RequestID RequestID      `json:"request_id"`
	Player    common.Address `json:"player"`
	ModelID   uint64         `json:"model_id"`
	Prompt    string         `json:"prompt"`
}

type PlayerAttemptResultData struct {
	RequestID RequestID      `json:"request_id"`
	Player    common.Address `json:"player"`
	ModelID   uint64         `json:"model_id"`
	Prompt    string         `json:"prompt"`
	Score     Score          `json:"score"`
	Won       bool           `json:"won"`
}

type WinnerAnnouncementData struct {
	Player common.Address  `json:"player"`
	Reward decimal.Decimal `json:"reward"`
}

type PlayerRefundedData struct {
	Player common.Address  `json:"player"`
	Amount decimal.Decimal `json:"amount"`
}

type DeveloperWalletUpdatedData struct {
	Wallet common.Address `json:"wallet"`
}

type MinSlippageUpdatedData struct {
	Percent int `json:"percent"`
}

type CallbackGasBudgetUpdatedData struct {
	ModelID   uint64 `json:"model_id"`
	GasBudget uint64 `json:"gas_budget"`
}

type GameClosedData struct {
	Pool            decimal.Decimal `json:"pool"`
	Winner          *common.Address `json:"winner,omitempty"`
	PendingRequests int             `json:"pending_requests"`
}
