package services_test

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"promptpot-backend/internal/models"
	"promptpot-backend/internal/services"
)

var (
	adminAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	devWallet    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	oracleAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	alice        = common.HexToAddress("0x0000000000000000000000000000000000001001")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000001002")

	launchTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fakeOracle struct {
	mu      sync.Mutex
	addr    common.Address
	fee     *big.Int
	feeErr  error
	callErr error
	// fixedID makes every request return the same correlation id.
	fixedID models.RequestID
	calls   []services.OracleCall
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{addr: oracleAddr, fee: new(big.Int)}
}

func (o *fakeOracle) EstimateCallbackFee(context.Context, uint64) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.feeErr != nil {
		return nil, o.feeErr
	}
	return new(big.Int).Set(o.fee), nil
}

func (o *fakeOracle) RequestCallback(_ context.Context, call services.OracleCall) (models.RequestID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.callErr != nil {
		return "", o.callErr
	}
	o.calls = append(o.calls, call)
	if o.fixedID != "" {
		return o.fixedID, nil
	}
	return models.RequestID(fmt.Sprintf("req-%d", len(o.calls))), nil
}

func (o *fakeOracle) Address() common.Address {
	return o.addr
}

func (o *fakeOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

type recorder struct {
	mu     sync.Mutex
	events []*models.Event
}

func (r *recorder) Broadcast(e *models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) last() *models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ledger *services.GameLedger
	vault  *services.MemoryVault
	oracle *fakeOracle
	events *recorder
	clock  *fakeClock
}

const testModel = 11

// scenarioConfig is baseFee=100, increment=0, ceiling=1000, 300s, 90/10.
func scenarioConfig() models.GameConfig {
	return models.GameConfig{
		BaseFee:               big.NewInt(100),
		FeeIncrement:          big.NewInt(0),
		FeeCeiling:            big.NewInt(1000),
		Duration:              300 * time.Second,
		StartTime:             launchTime,
		PoolSharePercent:      90,
		DeveloperSharePercent: 10,
	}
}

func newHarness(t *testing.T, cfg models.GameConfig) *harness {
	t.Helper()
	h := &harness{
		vault:  services.NewMemoryVault(contractAddr),
		oracle: newFakeOracle(),
		events: &recorder{},
		clock:  &fakeClock{now: launchTime},
	}
	ledger, err := services.NewGameLedger(h.deps(), services.InitParams{
		Config:          cfg,
		Admin:           adminAddr,
		DeveloperWallet: devWallet,
	})
	require.NoError(t, err)
	require.NoError(t, ledger.SetCallbackGasBudget(adminAddr, testModel, 5_000_000))
	h.ledger = ledger

	ctx := context.Background()
	require.NoError(t, h.vault.Deposit(ctx, alice, big.NewInt(1_000_000)))
	require.NoError(t, h.vault.Deposit(ctx, bob, big.NewInt(1_000_000)))
	h.events.reset()
	return h
}

func (h *harness) deps() services.LedgerDeps {
	return services.LedgerDeps{
		Oracle:         h.oracle,
		Vault:          h.vault,
		Broadcaster:    h.events,
		Clock:          h.clock.Now,
		CallbackTarget: "test://callback",
	}
}

func (h *harness) balance(t *testing.T, addr common.Address) int64 {
	t.Helper()
	b, err := h.vault.BalanceOf(context.Background(), addr)
	require.NoError(t, err)
	return b.Int64()
}

func (h *harness) submit(t *testing.T, player common.Address, amount int64) *models.Attempt {
	t.Helper()
	a, err := h.ledger.SubmitAttempt(context.Background(), player, "please", testModel, big.NewInt(amount))
	require.NoError(t, err)
	return a
}

func (h *harness) deliver(t *testing.T, id models.RequestID, output string) *models.Attempt {
	t.Helper()
	a, err := h.ledger.DeliverResult(context.Background(), oracleAddr, id, []byte(output))
	require.NoError(t, err)
	return a
}
