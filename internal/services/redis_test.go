package services_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptpot-backend/internal/config"
	"promptpot-backend/internal/models"
	"promptpot-backend/internal/services"
)

// newRedisService connects to a local redis under a fresh contract address
// so tests never share keys.
func newRedisService(t *testing.T) (*services.RedisService, common.Address) {
	t.Helper()
	id := uuid.New()
	contract := common.BytesToAddress(id[:])
	cfg := &config.Config{
		RedisURL:        "localhost:6379",
		ContractAddress: contract,
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		redisService.DeleteSnapshot(ctx)
		redisService.DeleteEvents(ctx)
		redisService.Close()
	})
	return redisService, contract
}

func TestRedisSnapshot(t *testing.T) {
	redisService, _ := newRedisService(t)
	ctx := context.Background()

	snap, err := redisService.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	h := newHarness(t, scenarioConfig())
	a := h.submit(t, alice, 100)
	require.NoError(t, redisService.SaveSnapshot(ctx, h.ledger.Snapshot()))

	snap, err = redisService.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "90", snap.Pool.String())
	assert.Equal(t, adminAddr, snap.Admin)
	require.Contains(t, snap.Requests, a.RequestID)
	assert.Equal(t, alice, snap.Requests[a.RequestID].Player)

	require.NoError(t, redisService.DeleteSnapshot(ctx))
	snap, err = redisService.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRedisEventJournal(t *testing.T) {
	redisService, _ := newRedisService(t)
	ctx := context.Background()
	journal := services.NewEventJournal(redisService)

	at := time.Now()
	journal.Broadcast(models.NewEvent(models.EventMinSlippageUpdated, at, models.MinSlippageUpdatedData{Percent: 1}))
	journal.Broadcast(models.NewEvent(models.EventMinSlippageUpdated, at, models.MinSlippageUpdatedData{Percent: 2}))
	journal.Close()

	events, err := redisService.GetEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var newest struct {
		Type models.EventType `json:"type"`
		Data struct {
			Percent int `json:"percent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(events[0], &newest))
	assert.Equal(t, models.EventMinSlippageUpdated, newest.Type)
	assert.Equal(t, 2, newest.Data.Percent)

	events, err = redisService.GetEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, redisService.DeleteEvents(ctx))
	events, err = redisService.GetEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventJournalDoesNotBlockBroadcaster(t *testing.T) {
	redisService, _ := newRedisService(t)
	journal := services.NewEventJournal(redisService)
	require.NoError(t, redisService.Close())

	start := time.Now()
	for i := 0; i < 100; i++ {
		journal.Broadcast(models.NewEvent(models.EventMinSlippageUpdated, start, models.MinSlippageUpdatedData{Percent: i}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	journal.Close()
	journal.Close()
}

func TestRedisRateLimit(t *testing.T) {
	redisService, _ := newRedisService(t)
	ctx := context.Background()
	player := common.BytesToAddress(uuid.New().NodeID())
	defer redisService.ClearRateLimit(ctx, player, "attempt")

	for i := 0; i < 3; i++ {
		ok, err := redisService.CheckRateLimit(ctx, player, "attempt", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i+1)
	}
	ok, err := redisService.CheckRateLimit(ctx, player, "attempt", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, redisService.ClearRateLimit(ctx, player, "attempt"))
	ok, err = redisService.CheckRateLimit(ctx, player, "attempt", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisVault(t *testing.T) {
	redisService, contract := newRedisService(t)
	ctx := context.Background()
	vault := services.NewRedisVault(redisService, contract)

	id := uuid.New()
	player := common.BytesToAddress(append([]byte{0xaa}, id[:]...))
	client := redisService.Client()
	t.Cleanup(func() {
		client.Del(context.Background(), "vault:"+contract.Hex(), "vault:"+player.Hex())
		vault.SetRejecting(context.Background(), player, false)
	})

	balance, err := vault.BalanceOf(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Int64())

	big1e21, _ := new(big.Int).SetString("1000000000000000000000", 10)
	require.NoError(t, vault.Deposit(ctx, player, big1e21))
	require.NoError(t, vault.Collect(ctx, player, big.NewInt(400)))

	held, err := vault.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(400), held.Int64())

	require.NoError(t, vault.Transfer(ctx, player, big.NewInt(100)))
	require.NoError(t, vault.SetRejecting(ctx, player, true))
	err = vault.Transfer(ctx, player, big.NewInt(100))
	assert.True(t, errors.Is(err, services.ErrTransferRejected))
	require.NoError(t, vault.Return(ctx, player, big.NewInt(100)), "returns ignore rejection")

	err = vault.Return(ctx, player, big.NewInt(1000))
	assert.True(t, errors.Is(err, services.ErrInsufficientBalance))

	balance, err = vault.BalanceOf(ctx, player)
	require.NoError(t, err)
	want := new(big.Int).Sub(big1e21, big.NewInt(200))
	assert.Equal(t, want.String(), balance.String())

	held, err = vault.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), held.Int64())
}

func TestLedgerOverRedisVault(t *testing.T) {
	redisService, contract := newRedisService(t)
	ctx := context.Background()
	vault := services.NewRedisVault(redisService, contract)
	player := common.BytesToAddress(append([]byte{0xbb}, contract.Bytes()[:8]...))
	wallet := common.BytesToAddress(append([]byte{0xcc}, contract.Bytes()[:8]...))
	t.Cleanup(func() {
		redisService.Client().Del(context.Background(),
			"vault:"+contract.Hex(), "vault:"+player.Hex(), "vault:"+wallet.Hex())
	})

	clock := &fakeClock{now: launchTime}
	ledger, err := services.NewGameLedger(services.LedgerDeps{
		Oracle: newFakeOracle(),
		Vault:  vault,
		Clock:  clock.Now,
	}, services.InitParams{
		Config:          scenarioConfig(),
		Admin:           adminAddr,
		DeveloperWallet: wallet,
	})
	require.NoError(t, err)
	require.NoError(t, ledger.SetCallbackGasBudget(adminAddr, testModel, 1))
	require.NoError(t, vault.Deposit(ctx, player, big.NewInt(1000)))

	_, err = ledger.SubmitAttempt(ctx, player, "hi", testModel, big.NewInt(120))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	refund, err := ledger.ClaimRefund(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, int64(90), refund.Int64())

	balance, err := vault.BalanceOf(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, int64(990), balance.Int64())
	devBalance, err := vault.BalanceOf(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(10), devBalance.Int64())
}
