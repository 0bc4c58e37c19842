package models

import "github.com/pkg/errors"

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindState         ErrorKind = "state"
	KindTransfer      ErrorKind = "transfer"
	KindIntegrity     ErrorKind = "integrity"
	KindExternal      ErrorKind = "external"
	KindInternal      ErrorKind = "internal"
)

// GameError is a distinct rejection reason. Every sentinel below is a
// *GameError so callers can match with errors.Is and read the code with
// errors.As.
type GameError struct {
	Code string
	Kind ErrorKind
	msg  string
}

func (e *GameError) Error() string {
	return e.msg
}

func newGameError(kind ErrorKind, code, msg string) *GameError {
	return &GameError{Code: code, Kind: kind, msg: msg}
}

var (
	ErrInvalidConfiguration        = newGameError(KindValidation, "InvalidConfiguration", "invalid configuration")
	ErrInsufficientFee             = newGameError(KindValidation, "InsufficientFee", "insufficient fee")
	ErrInsufficientFeeWithSlippage = newGameError(KindValidation, "InsufficientFeeWithSlippage", "insufficient fee with slippage")
	ErrUnsupportedModel            = newGameError(KindValidation, "UnsupportedModel", "unsupported model")
	ErrInvalidRequest              = newGameError(KindValidation, "InvalidRequest", "invalid request")

	ErrUnauthorized = newGameError(KindAuthorization, "Unauthorized", "unauthorized")

	ErrGameNotStarted        = newGameError(KindState, "GameNotStarted", "game not started")
	ErrGameEnded             = newGameError(KindState, "GameEnded", "game ended")
	ErrGameInProgress        = newGameError(KindState, "GameInProgress", "game in progress")
	ErrWinnerAlreadyDeclared = newGameError(KindState, "WinnerAlreadyDeclared", "winner already declared")
	ErrNotAParticipant       = newGameError(KindState, "NotAParticipant", "not a participant")
	ErrAlreadyRefunded       = newGameError(KindState, "AlreadyRefunded", "already refunded")

	ErrTransferFailed         = newGameError(KindTransfer, "TransferFailed", "transfer failed")
	ErrRefundProcessingFailed = newGameError(KindTransfer, "RefundProcessingFailed", "refund processing failed")

	ErrWinnerRewardConditionsNotMet = newGameError(KindIntegrity, "WinnerRewardConditionsNotMet", "winner reward conditions not met")
	ErrRequestNotFound              = newGameError(KindIntegrity, "RequestNotFound", "request not found")
	ErrAttemptNotFound              = newGameError(KindIntegrity, "AttemptNotFound", "attempt not found")
	ErrRequestIDCollision           = newGameError(KindIntegrity, "RequestIdCollision", "request id collision")
	ErrRequestAlreadyFulfilled      = newGameError(KindIntegrity, "RequestAlreadyFulfilled", "request already fulfilled")

	ErrOracleUnavailable = newGameError(KindExternal, "OracleUnavailable", "oracle unavailable")
)

// KindOf classifies err. Errors that are not game errors are internal.
func KindOf(err error) ErrorKind {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// CodeOf returns the stable rejection code clients switch on.
func CodeOf(err error) string {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return "InternalError"
}
