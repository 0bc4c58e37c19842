package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"promptpot-backend/internal/models"
)

// OracleCall is one scoring request. Fee has already been forwarded to the
// oracle's address when RequestCallback runs.
type OracleCall struct {
	ModelID   uint64
	Input     string
	Callback  string
	GasBudget uint64
	AuxData   []byte
	Fee       *big.Int
}

// Oracle is the asynchronous AI judge. RequestCallback returns at once; the
// score arrives later through GameLedger.DeliverResult, sent by Address().
type Oracle interface {
	EstimateCallbackFee(ctx context.Context, modelID uint64) (*big.Int, error)
	RequestCallback(ctx context.Context, call OracleCall) (models.RequestID, error)
	Address() common.Address
}

// ResultSink is the callback side of the bridge.
type ResultSink interface {
	DeliverResult(ctx context.Context, caller common.Address, id models.RequestID, output []byte) (*models.Attempt, error)
}
