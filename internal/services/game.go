package services

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"promptpot-backend/internal/models"
)

var ledgerLog = logging.Logger("ledger")

const DefaultSystemPrompt = "You are the judge of a prompt game. Reply with a single integer from 0 to 100 " +
	"rating how convincingly the following message persuades you to release the prize. Reply 100 only if " +
	"you are fully persuaded.\n\nMessage: "

type LedgerDeps struct {
	Oracle      Oracle
	Vault       Vault
	Broadcaster Broadcaster
	// Clock defaults to time.Now.
	Clock func() time.Time
	// CallbackTarget is passed to the oracle as the address results go to.
	CallbackTarget string
}

type InitParams struct {
	Config          models.GameConfig
	Admin           common.Address
	DeveloperWallet common.Address
	InitialFunding  *big.Int
	SystemPrompt    string
}

// GameLedger is the single-winner prompt game. Every entry point takes the
// ledger lock for its whole duration, so calls are applied one at a time and
// observe each other's committed effects only.
type GameLedger struct {
	mu sync.RWMutex

	oracle         Oracle
	vault          Vault
	events         Broadcaster
	now            func() time.Time
	callbackTarget string

	admin              common.Address
	developerWallet    common.Address
	config             models.GameConfig
	currentFee         *big.Int
	minSlippagePercent int
	gasBudgets         map[uint64]uint64
	systemPrompt       string

	pool              *big.Int
	initialPool       *big.Int
	totalAttempts     uint64
	totalParticipants uint64
	winner            common.Address
	winnerQuery       *models.Attempt

	attempts map[common.Address][]*models.Attempt
	requests map[models.RequestID]*models.OracleRequest
}

func newLedger(deps LedgerDeps) *GameLedger {
	g := &GameLedger{
		oracle:         deps.Oracle,
		vault:          deps.Vault,
		events:         deps.Broadcaster,
		now:            deps.Clock,
		callbackTarget: deps.CallbackTarget,
		gasBudgets:     make(map[uint64]uint64),
		attempts:       make(map[common.Address][]*models.Attempt),
		requests:       make(map[models.RequestID]*models.OracleRequest),
	}
	if g.events == nil {
		g.events = nopBroadcaster{}
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// NewGameLedger validates the configuration and launches a game. The initial
// funding must already sit in the vault's contract account.
func NewGameLedger(deps LedgerDeps, params InitParams) (*GameLedger, error) {
	if deps.Oracle == nil || deps.Vault == nil {
		return nil, errors.New("ledger needs an oracle and a vault")
	}
	if params.DeveloperWallet == (common.Address{}) {
		return nil, errors.Wrap(models.ErrInvalidConfiguration, "developer wallet is the zero address")
	}
	if params.Admin == (common.Address{}) {
		return nil, errors.Wrap(models.ErrInvalidConfiguration, "admin is the zero address")
	}
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	funding := new(big.Int)
	if params.InitialFunding != nil {
		if params.InitialFunding.Sign() < 0 {
			return nil, errors.Wrap(models.ErrInvalidConfiguration, "initial funding is negative")
		}
		funding.Set(params.InitialFunding)
	}

	g := newLedger(deps)
	g.admin = params.Admin
	g.developerWallet = params.DeveloperWallet
	g.config = params.Config.Clone()
	g.currentFee = new(big.Int).Set(params.Config.BaseFee)
	g.pool = funding
	g.initialPool = new(big.Int).Set(funding)
	g.systemPrompt = params.SystemPrompt
	if g.systemPrompt == "" {
		g.systemPrompt = DefaultSystemPrompt
	}

	now := g.now()
	ledgerLog.Infow("game launched",
		"start", g.config.StartTime, "end", g.config.EndTime(),
		"base_fee", g.currentFee.String(), "initial_pool", funding.String())
	g.events.Broadcast(models.NewEvent(models.EventGameLaunched, now, models.GameLaunchedData{
		Config:      models.NewConfigView(g.config),
		InitialPool: models.NewAmount(funding),
	}))
	return g, nil
}

// RestoreGameLedger rebuilds a ledger from a snapshot without announcing a launch.
func RestoreGameLedger(deps LedgerDeps, snap *models.LedgerSnapshot) (*GameLedger, error) {
	if snap == nil {
		return nil, errors.New("nil snapshot")
	}
	if err := snap.Config.Validate(); err != nil {
		return nil, errors.Wrap(err, "snapshot config")
	}
	g := newLedger(deps)
	g.admin = snap.Admin
	g.developerWallet = snap.DeveloperWallet
	g.config = snap.Config.Clone()
	g.currentFee = cloneOrZero(snap.CurrentFee)
	g.minSlippagePercent = snap.MinSlippagePercent
	for model, gas := range snap.GasBudgets {
		g.gasBudgets[model] = gas
	}
	g.systemPrompt = snap.SystemPrompt
	g.pool = cloneOrZero(snap.Pool)
	g.initialPool = cloneOrZero(snap.InitialPool)
	g.totalAttempts = snap.TotalAttempts
	g.totalParticipants = snap.TotalParticipants
	g.winner = snap.Winner
	g.winnerQuery = snap.WinnerQuery.Clone()
	for player, list := range snap.Attempts {
		for _, a := range list {
			g.attempts[player] = append(g.attempts[player], a.Clone())
		}
	}
	for id, r := range snap.Requests {
		g.requests[id] = r.Clone()
	}
	ledgerLog.Infow("ledger restored", "attempts", g.totalAttempts, "saved_at", snap.SavedAt)
	return g, nil
}

// --- admin ---

func (g *GameLedger) SetDeveloperWallet(caller, wallet common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireAdmin(caller); err != nil {
		return err
	}
	if wallet == (common.Address{}) {
		return errors.Wrap(models.ErrInvalidConfiguration, "developer wallet is the zero address")
	}
	g.developerWallet = wallet
	g.events.Broadcast(models.NewEvent(models.EventDeveloperWalletUpdated, g.now(),
		models.DeveloperWalletUpdatedData{Wallet: wallet}))
	return nil
}

func (g *GameLedger) SetMinSlippagePercent(caller common.Address, percent int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireAdmin(caller); err != nil {
		return err
	}
	if err := models.ValidatePercent(percent); err != nil {
		return err
	}
	g.minSlippagePercent = percent
	g.events.Broadcast(models.NewEvent(models.EventMinSlippageUpdated, g.now(),
		models.MinSlippageUpdatedData{Percent: percent}))
	return nil
}

// SetCallbackGasBudget enables a scoring model. A zero budget disables it.
func (g *GameLedger) SetCallbackGasBudget(caller common.Address, modelID, gasBudget uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireAdmin(caller); err != nil {
		return err
	}
	if gasBudget == 0 {
		delete(g.gasBudgets, modelID)
	} else {
		g.gasBudgets[modelID] = gasBudget
	}
	g.events.Broadcast(models.NewEvent(models.EventCallbackGasBudgetUpdated, g.now(),
		models.CallbackGasBudgetUpdatedData{ModelID: modelID, GasBudget: gasBudget}))
	return nil
}

// UpdateConfig replaces the configuration. Before the first attempt the entry
// fee resets to the new base fee; afterwards the escalated fee is kept. Once
// the game has started its window (start time and duration) is fixed.
func (g *GameLedger) UpdateConfig(caller common.Address, cfg models.GameConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireAdmin(caller); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if started := !g.now().Before(g.config.StartTime); started &&
		(!cfg.StartTime.Equal(g.config.StartTime) || cfg.Duration != g.config.Duration) {
		return errors.Wrapf(models.ErrInvalidConfiguration, "game window is fixed since %s",
			g.config.StartTime.Format(time.RFC3339))
	}
	g.config = cfg.Clone()
	if g.totalAttempts == 0 {
		g.currentFee = new(big.Int).Set(cfg.BaseFee)
	}
	ledgerLog.Infow("config updated", "start", cfg.StartTime, "end", cfg.EndTime(), "fee", g.currentFee.String())
	g.events.Broadcast(models.NewEvent(models.EventConfigUpdated, g.now(), models.NewConfigView(g.config)))
	return nil
}

func (g *GameLedger) requireAdmin(caller common.Address) error {
	if caller != g.admin {
		return errors.Wrapf(models.ErrUnauthorized, "%s is not the administrator", caller.Hex())
	}
	return nil
}

// --- submission ---

// SubmitAttempt enters a prompt. attached is the value the participant pays
// with the call; the vault collects it only after every precondition holds.
func (g *GameLedger) SubmitAttempt(ctx context.Context, player common.Address, prompt string, modelID uint64, attached *big.Int) (*models.Attempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if attached == nil {
		attached = new(big.Int)
	}

	gasBudget, ok := g.gasBudgets[modelID]
	if !ok {
		return nil, errors.Wrapf(models.ErrUnsupportedModel, "model %d", modelID)
	}
	now := g.now()
	if now.Before(g.config.StartTime) {
		return nil, errors.Wrapf(models.ErrGameNotStarted, "starts at %s", g.config.StartTime.Format(time.RFC3339))
	}
	if !now.Before(g.config.EndTime()) {
		return nil, errors.Wrapf(models.ErrGameEnded, "ended at %s", g.config.EndTime().Format(time.RFC3339))
	}
	if g.hasWinner() {
		return nil, errors.Wrapf(models.ErrWinnerAlreadyDeclared, "winner is %s", g.winner.Hex())
	}

	quote, err := g.quoteLocked(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if attached.Cmp(quote.Required) < 0 {
		return nil, errors.Wrapf(models.ErrInsufficientFee, "need %s, got %s", quote.Required, attached)
	}
	if attached.Cmp(quote.MinWithSlippage) < 0 {
		return nil, errors.Wrapf(models.ErrInsufficientFeeWithSlippage, "need %s, got %s", quote.MinWithSlippage, attached)
	}

	if err := g.vault.Collect(ctx, player, attached); err != nil {
		return nil, errors.Wrapf(models.ErrTransferFailed, "collect payment: %v", err)
	}
	// held is the part of this payment still sitting in the contract account.
	// Whatever is left of it goes back to the sender if a later step fails.
	held := new(big.Int).Set(attached)
	abort := func(cause error) (*models.Attempt, error) {
		g.returnUnspent(ctx, player, held)
		return nil, cause
	}

	excess := new(big.Int).Sub(attached, quote.Required)
	if excess.Sign() > 0 {
		if err := g.vault.Transfer(ctx, player, excess); err != nil {
			return abort(errors.Wrapf(models.ErrTransferFailed, "refund excess %s: %v", excess, err))
		}
		// From here on the excess refund stands even if the call fails.
		held.Sub(held, excess)
	}

	net := new(big.Int).Set(quote.Required)
	developerShare := percentOf(net, g.config.DeveloperSharePercent)
	poolShare := new(big.Int).Sub(net, developerShare)

	if developerShare.Sign() > 0 {
		if err := g.vault.Transfer(ctx, g.developerWallet, developerShare); err != nil {
			return abort(errors.Wrapf(models.ErrTransferFailed, "developer share %s: %v", developerShare, err))
		}
		// Paid developer shares are not clawed back by later failures.
		held.Sub(held, developerShare)
	}

	nextFee := g.escalatedFee()

	sequence := uint64(len(g.attempts[player]))
	input := g.systemPrompt + prompt

	if quote.OracleFee.Sign() > 0 {
		if err := g.vault.Transfer(ctx, g.oracle.Address(), quote.OracleFee); err != nil {
			return abort(errors.Wrapf(models.ErrTransferFailed, "oracle fee %s: %v", quote.OracleFee, err))
		}
		held.Sub(held, minBig(held, quote.OracleFee))
	}
	id, err := g.oracle.RequestCallback(ctx, OracleCall{
		ModelID:   modelID,
		Input:     input,
		Callback:  g.callbackTarget,
		GasBudget: gasBudget,
		Fee:       new(big.Int).Set(quote.OracleFee),
	})
	if err != nil {
		return abort(errors.Wrapf(models.ErrOracleUnavailable, "request callback: %v", err))
	}
	if _, exists := g.requests[id]; exists {
		ledgerLog.Errorw("oracle reused a request id", "request_id", id, "player", player.Hex())
		return abort(errors.Wrapf(models.ErrRequestIDCollision, "request %s", id))
	}

	// Commit.
	g.pool.Add(g.pool, poolShare)
	g.currentFee = nextFee
	if sequence == 0 {
		g.totalParticipants++
	}
	g.totalAttempts++
	g.requests[id] = &models.OracleRequest{
		ID:       id,
		Player:   player,
		Sequence: sequence,
		ModelID:  modelID,
		Prompt:   prompt,
		Input:    input,
	}
	attempt := &models.Attempt{
		Player:      player,
		Sequence:    sequence,
		RequestID:   id,
		Fee:         poolShare,
		SubmittedAt: now,
	}
	g.attempts[player] = append(g.attempts[player], attempt)

	ledgerLog.Infow("attempt submitted",
		"player", player.Hex(), "request_id", id, "model", modelID,
		"pool_share", poolShare.String(), "developer_share", developerShare.String(),
		"next_fee", nextFee.String())
	g.events.Broadcast(models.NewEvent(models.EventPlayerAttempted, now, models.PlayerAttemptedData{
		RequestID: id,
		Player:    player,
		ModelID:   modelID,
		Prompt:    prompt,
	}))
	return attempt.Clone(), nil
}

// returnUnspent hands back what is left of a payment after a failed submission.
func (g *GameLedger) returnUnspent(ctx context.Context, player common.Address, held *big.Int) {
	if held.Sign() <= 0 {
		return
	}
	if err := g.vault.Return(ctx, player, held); err != nil {
		ledgerLog.Errorw("failed to return payment", "player", player.Hex(), "amount", held.String(), "err", err)
	}
}

// escalatedFee is fee + fee*increment/10^20 while below the ceiling.
func (g *GameLedger) escalatedFee() *big.Int {
	fee := new(big.Int).Set(g.currentFee)
	if fee.Cmp(g.config.FeeCeiling) >= 0 {
		return fee
	}
	step := new(big.Int).Mul(fee, g.config.FeeIncrement)
	step.Quo(step, models.FeeIncrementScale)
	return fee.Add(fee, step)
}

// Quote reports what a participant must attach to enter with modelID now.
func (g *GameLedger) Quote(ctx context.Context, modelID uint64) (*models.Quote, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.gasBudgets[modelID]; !ok {
		return nil, errors.Wrapf(models.ErrUnsupportedModel, "model %d", modelID)
	}
	return g.quoteLocked(ctx, modelID)
}

func (g *GameLedger) quoteLocked(ctx context.Context, modelID uint64) (*models.Quote, error) {
	oracleFee, err := g.oracle.EstimateCallbackFee(ctx, modelID)
	if err != nil {
		return nil, errors.Wrapf(models.ErrOracleUnavailable, "estimate fee: %v", err)
	}
	if oracleFee == nil || oracleFee.Sign() < 0 {
		return nil, errors.Wrapf(models.ErrOracleUnavailable, "oracle quoted fee %v", oracleFee)
	}
	fee := new(big.Int).Set(g.currentFee)
	required := new(big.Int).Add(fee, oracleFee)
	withSlippage := new(big.Int).Add(fee, percentOf(fee, g.minSlippagePercent))
	withSlippage.Add(withSlippage, oracleFee)
	return &models.Quote{
		ModelID:         modelID,
		EntryFee:        fee,
		OracleFee:       new(big.Int).Set(oracleFee),
		Required:        required,
		MinWithSlippage: withSlippage,
		SlippagePercent: g.minSlippagePercent,
	}, nil
}

// --- oracle callback ---

// DeliverResult settles the attempt behind id. Only the oracle may call it.
// An undecodable output settles the attempt as a failed loss, never an error.
func (g *GameLedger) DeliverResult(ctx context.Context, caller common.Address, id models.RequestID, output []byte) (*models.Attempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.oracle.Address() {
		return nil, errors.Wrapf(models.ErrUnauthorized, "%s is not the oracle", caller.Hex())
	}
	req, ok := g.requests[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrRequestNotFound, "request %s", id)
	}
	if req.Fulfilled {
		return nil, errors.Wrapf(models.ErrRequestAlreadyFulfilled, "request %s", id)
	}
	score := models.ParseScore(output)
	attempt := g.attemptLocked(req.Player, req.Sequence)
	if attempt == nil {
		return nil, errors.Wrapf(models.ErrAttemptNotFound, "player %s sequence %d", req.Player.Hex(), req.Sequence)
	}

	settled := attempt.Clone()
	settled.Score = score
	settled.Failed = score.State == models.ScoreDecodeFailed
	settled.Won = score.State == models.ScoreSettled && score.Value == models.WinningScore

	var reward *big.Int
	if settled.Won {
		if g.hasWinner() {
			return nil, errors.Wrapf(models.ErrWinnerAlreadyDeclared, "winner is %s", g.winner.Hex())
		}
		balance, err := g.vault.Balance(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "read vault balance")
		}
		reward = models.MinInt(g.pool, balance)
		if reward.Sign() <= 0 {
			return nil, errors.Wrapf(models.ErrWinnerRewardConditionsNotMet, "pool %s, balance %s", g.pool, balance)
		}
		if err := g.vault.Transfer(ctx, req.Player, reward); err != nil {
			ledgerLog.Errorw("winner payout failed", "player", req.Player.Hex(), "reward", reward.String(), "err", err)
			return nil, errors.Wrapf(models.ErrTransferFailed, "pay winner %s: %v", reward, err)
		}
	}

	// Commit.
	*attempt = *settled
	req.Output = append([]byte(nil), output...)
	req.Fulfilled = true
	now := g.now()

	n, _ := score.Number()
	ledgerLog.Infow("attempt scored", "player", req.Player.Hex(), "request_id", id, "score", n, "won", settled.Won)
	g.events.Broadcast(models.NewEvent(models.EventPlayerAttemptResult, now, models.PlayerAttemptResultData{
		RequestID: id,
		Player:    req.Player,
		ModelID:   req.ModelID,
		Prompt:    req.Prompt,
		Score:     score,
		Won:       settled.Won,
	}))

	if settled.Won {
		g.winner = req.Player
		g.winnerQuery = attempt.Clone()
		g.pool.Sub(g.pool, reward)
		ledgerLog.Infow("winner declared", "player", req.Player.Hex(), "reward", reward.String())
		g.events.Broadcast(models.NewEvent(models.EventWinnerAnnouncement, now, models.WinnerAnnouncementData{
			Player: req.Player,
			Reward: models.NewAmount(reward),
		}))
	}
	return attempt.Clone(), nil
}

// --- refunds ---

// ClaimRefund pays back the caller's unrefunded pool contributions once the
// game is over without a winner.
//
// Attempts are marked refunded before the payout. If the payout then fails
// the marks stay and the refund cannot be claimed again.
func (g *GameLedger) ClaimRefund(ctx context.Context, caller common.Address) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	list := g.attempts[caller]
	if len(list) == 0 {
		return nil, errors.Wrapf(models.ErrNotAParticipant, "%s", caller.Hex())
	}
	if g.hasWinner() {
		return nil, errors.Wrapf(models.ErrWinnerAlreadyDeclared, "winner is %s", g.winner.Hex())
	}
	if g.now().Before(g.config.EndTime()) {
		return nil, errors.Wrapf(models.ErrGameInProgress, "ends at %s", g.config.EndTime().Format(time.RFC3339))
	}

	total := new(big.Int)
	for _, a := range list {
		if a.Refunded {
			continue
		}
		a.Refunded = true
		total.Add(total, a.Fee)
	}
	if total.Sign() == 0 {
		return nil, errors.Wrapf(models.ErrAlreadyRefunded, "%s", caller.Hex())
	}

	balance, err := g.vault.Balance(ctx)
	if err != nil {
		ledgerLog.Errorw("refund marked but balance unreadable", "player", caller.Hex(), "amount", total.String(), "err", err)
		return nil, errors.Wrapf(models.ErrRefundProcessingFailed, "read balance: %v", err)
	}
	if balance.Cmp(total) < 0 {
		ledgerLog.Errorw("refund marked but balance short", "player", caller.Hex(), "amount", total.String(), "balance", balance.String())
		return nil, errors.Wrapf(models.ErrRefundProcessingFailed, "balance %s below refund %s", balance, total)
	}
	if err := g.vault.Transfer(ctx, caller, total); err != nil {
		ledgerLog.Errorw("refund marked but transfer failed", "player", caller.Hex(), "amount", total.String(), "err", err)
		return nil, errors.Wrapf(models.ErrTransferFailed, "refund %s: %v", total, err)
	}
	g.pool.Sub(g.pool, minBig(g.pool, total))

	ledgerLog.Infow("refund paid", "player", caller.Hex(), "amount", total.String())
	g.events.Broadcast(models.NewEvent(models.EventPlayerRefunded, g.now(), models.PlayerRefundedData{
		Player: caller,
		Amount: models.NewAmount(total),
	}))
	return total, nil
}

// --- reads ---

func (g *GameLedger) Config() models.GameConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config.Clone()
}

func (g *GameLedger) CurrentFee() *big.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return new(big.Int).Set(g.currentFee)
}

func (g *GameLedger) Pool() *big.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return new(big.Int).Set(g.pool)
}

func (g *GameLedger) InitialPool() *big.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return new(big.Int).Set(g.initialPool)
}

func (g *GameLedger) Admin() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admin
}

func (g *GameLedger) DeveloperWallet() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.developerWallet
}

func (g *GameLedger) MinSlippagePercent() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.minSlippagePercent
}

func (g *GameLedger) CallbackGasBudget(modelID uint64) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gasBudgets[modelID]
}

// Winner returns the winner, if there is one.
func (g *GameLedger) Winner() (common.Address, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.winner, g.hasWinner()
}

// WinnerQuery is the winning attempt, nil before a winner exists.
func (g *GameLedger) WinnerQuery() *models.Attempt {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.winnerQuery.Clone()
}

func (g *GameLedger) AttemptCount(player common.Address) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return uint64(len(g.attempts[player]))
}

func (g *GameLedger) Attempts(player common.Address) []*models.Attempt {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*models.Attempt, 0, len(g.attempts[player]))
	for _, a := range g.attempts[player] {
		out = append(out, a.Clone())
	}
	return out
}

func (g *GameLedger) Attempt(player common.Address, sequence uint64) (*models.Attempt, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a := g.attemptLocked(player, sequence)
	return a.Clone(), a != nil
}

func (g *GameLedger) AttemptByRequest(id models.RequestID) (*models.Attempt, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	req, ok := g.requests[id]
	if !ok {
		return nil, false
	}
	a := g.attemptLocked(req.Player, req.Sequence)
	return a.Clone(), a != nil
}

func (g *GameLedger) Request(id models.RequestID) (*models.OracleRequest, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	req, ok := g.requests[id]
	return req.Clone(), ok
}

// PendingRequests lists correlation ids still waiting for a callback.
func (g *GameLedger) PendingRequests() []models.RequestID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []models.RequestID
	for id, req := range g.requests {
		if !req.Fulfilled {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Closed reports whether the game window has elapsed.
func (g *GameLedger) Closed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.now().Before(g.config.EndTime())
}

func (g *GameLedger) Stats() *models.GameStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	now := g.now()
	stats := &models.GameStats{
		Pool:              new(big.Int).Set(g.pool),
		InitialPool:       new(big.Int).Set(g.initialPool),
		CurrentFee:        new(big.Int).Set(g.currentFee),
		TotalAttempts:     g.totalAttempts,
		TotalParticipants: g.totalParticipants,
		StartTime:         g.config.StartTime,
		EndTime:           g.config.EndTime(),
		Open: !now.Before(g.config.StartTime) && now.Before(g.config.EndTime()) &&
			!g.hasWinner(),
	}
	if g.hasWinner() {
		w := g.winner
		stats.Winner = &w
	}
	return stats
}

// Snapshot copies the whole ledger state for persistence.
func (g *GameLedger) Snapshot() *models.LedgerSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snap := &models.LedgerSnapshot{
		Admin:              g.admin,
		DeveloperWallet:    g.developerWallet,
		Config:             g.config.Clone(),
		CurrentFee:         new(big.Int).Set(g.currentFee),
		MinSlippagePercent: g.minSlippagePercent,
		GasBudgets:         make(map[uint64]uint64, len(g.gasBudgets)),
		SystemPrompt:       g.systemPrompt,
		Pool:               new(big.Int).Set(g.pool),
		InitialPool:        new(big.Int).Set(g.initialPool),
		TotalAttempts:      g.totalAttempts,
		TotalParticipants:  g.totalParticipants,
		Winner:             g.winner,
		WinnerQuery:        g.winnerQuery.Clone(),
		Attempts:           make(map[common.Address][]*models.Attempt, len(g.attempts)),
		Requests:           make(map[models.RequestID]*models.OracleRequest, len(g.requests)),
		SavedAt:            g.now(),
	}
	for model, gas := range g.gasBudgets {
		snap.GasBudgets[model] = gas
	}
	for player, list := range g.attempts {
		for _, a := range list {
			snap.Attempts[player] = append(snap.Attempts[player], a.Clone())
		}
	}
	for id, r := range g.requests {
		snap.Requests[id] = r.Clone()
	}
	return snap
}

func (g *GameLedger) hasWinner() bool {
	return g.winner != (common.Address{})
}

func (g *GameLedger) attemptLocked(player common.Address, sequence uint64) *models.Attempt {
	list := g.attempts[player]
	if sequence >= uint64(len(list)) {
		return nil
	}
	return list[sequence]
}

// percentOf is floor(x*pct/100).
func percentOf(x *big.Int, pct int) *big.Int {
	out := new(big.Int).Mul(x, big.NewInt(int64(pct)))
	return out.Quo(out, big.NewInt(models.PercentBase))
}

func minBig(a, b *big.Int) *big.Int {
	return models.MinInt(a, b)
}

func cloneOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
