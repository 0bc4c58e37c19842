package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptpot-backend/internal/config"
	"promptpot-backend/internal/handlers"
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
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubOracle struct {
	mu sync.Mutex
	n  int
}

func (o *stubOracle) EstimateCallbackFee(context.Context, uint64) (*big.Int, error) {
	return new(big.Int), nil
}

func (o *stubOracle) RequestCallback(context.Context, services.OracleCall) (models.RequestID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.n++
	return models.RequestID(fmt.Sprintf("req-%d", o.n)), nil
}

func (o *stubOracle) Address() common.Address {
	return oracleAddr
}

type countingStore struct {
	mu    sync.Mutex
	saves int
}

func (s *countingStore) SaveSnapshot(context.Context, *models.LedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type denyAfter struct {
	mu    sync.Mutex
	limit int
	calls map[string]int
}

func (d *denyAfter) CheckRateLimit(_ context.Context, addr common.Address, action string, _ int, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := addr.Hex() + action
	d.calls[key]++
	return d.calls[key] <= d.limit, nil
}

type testEnv struct {
	router *gin.Engine
	ledger *services.GameLedger
	vault  *services.MemoryVault
	jwt    *services.JWTService
	store  *countingStore
	hub    *handlers.WebSocketHub

	mu  sync.Mutex
	now time.Time
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T, limiter *denyAfter) *testEnv {
	t.Helper()
	env := &testEnv{
		vault: services.NewMemoryVault(contractAddr),
		jwt:   services.NewJWTService(&config.Config{JWTSecret: "handler-secret"}),
		store: &countingStore{},
		hub:   handlers.NewWebSocketHub(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(env.hub.Close)

	ledger, err := services.NewGameLedger(services.LedgerDeps{
		Oracle:      &stubOracle{},
		Vault:       env.vault,
		Broadcaster: env.hub,
		Clock:       env.clock,
	}, services.InitParams{
		Config: models.GameConfig{
			BaseFee:               big.NewInt(100),
			FeeIncrement:          big.NewInt(0),
			FeeCeiling:            big.NewInt(1000),
			Duration:              300 * time.Second,
			StartTime:             env.now,
			PoolSharePercent:      90,
			DeveloperSharePercent: 10,
		},
		Admin:           adminAddr,
		DeveloperWallet: devWallet,
	})
	require.NoError(t, err)
	require.NoError(t, ledger.SetCallbackGasBudget(adminAddr, 11, 5_000_000))
	env.ledger = ledger

	ctx := context.Background()
	require.NoError(t, env.vault.Deposit(ctx, alice, big.NewInt(10_000)))
	require.NoError(t, env.vault.Deposit(ctx, bob, big.NewInt(10_000)))

	rc := handlers.RouterConfig{
		Game:      handlers.NewGameHandler(ledger, env.vault, env.store, nil),
		User:      handlers.NewUserHandler(ledger, env.vault),
		WebSocket: handlers.NewWebSocketHandler(ledger, env.hub),
		JWT:       env.jwt,
		Faucet:    true,
	}
	if limiter != nil {
		rc.Limiter = limiter
	}
	env.router = handlers.NewRouter(rc)
	return env
}

func (e *testEnv) token(t *testing.T, addr common.Address, role services.Role) string {
	t.Helper()
	token, err := e.jwt.GenerateToken(addr, role)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func submitBody(amount string) gin.H {
	return gin.H{"prompt": "please", "model_id": 11, "amount": amount}
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.do(t, http.MethodGet, "/api/game", "", nil)
	require.Equal(t, http.StatusOK, code)
	game := body["game"].(map[string]interface{})
	assert.Equal(t, "100", game["current_fee"])
	assert.Equal(t, true, game["open"])
	assert.Equal(t, adminAddr, common.HexToAddress(body["admin"].(string)))

	code, body = env.do(t, http.MethodGet, "/api/game/config", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(90), body["config"].(map[string]interface{})["pool_share_percent"])

	code, body = env.do(t, http.MethodGet, "/api/game/quote?model=11", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100", body["quote"].(map[string]interface{})["required"])
	assert.Equal(t, float64(5_000_000), body["gas_budget"])

	code, body = env.do(t, http.MethodGet, "/api/game/quote?model=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidRequest", body["code"])

	code, body = env.do(t, http.MethodGet, "/api/game/quote?model=7", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "UnsupportedModel", body["code"])

	code, body = env.do(t, http.MethodGet, "/api/game/winner", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["winner"])

	code, body = env.do(t, http.MethodGet, "/api/game/events", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, body = env.do(t, http.MethodGet, "/api/game/attempts/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "RequestNotFound", body["code"])
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.do(t, http.MethodGet, "/api/attempts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodGet, "/api/attempts", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/api/attempts", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	code, _ = env.do(t, http.MethodGet, "/api/attempts", env.token(t, alice, services.RoleAdmin), nil)
	assert.Equal(t, http.StatusForbidden, code)

	req = httptest.NewRequest(http.MethodGet, "/api/attempts?token="+env.token(t, alice, services.RolePlayer), nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitAndSettle(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.token(t, alice, services.RolePlayer)
	oracle := env.token(t, oracleAddr, services.RoleOracle)

	code, body := env.do(t, http.MethodPost, "/api/attempts", player, submitBody("100"))
	require.Equal(t, http.StatusOK, code, body)
	attempt := body["attempt"].(map[string]interface{})
	id := attempt["request_id"].(string)
	assert.Equal(t, "90", attempt["fee"])
	assert.Nil(t, attempt["score"])
	assert.Equal(t, 1, env.store.count())

	code, body = env.do(t, http.MethodGet, "/api/game/attempts/"+id, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["attempt"].(map[string]interface{})["score"])

	// Only the oracle role reaches the callback.
	code, _ = env.do(t, http.MethodPost, "/oracle/callback", player, gin.H{"request_id": id, "output": "100"})
	assert.Equal(t, http.StatusForbidden, code)

	// An oracle-role token for the wrong address is refused by the ledger.
	impostor := env.token(t, bob, services.RoleOracle)
	code, body = env.do(t, http.MethodPost, "/oracle/callback", impostor, gin.H{"request_id": id, "output": "100"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Unauthorized", body["code"])

	code, body = env.do(t, http.MethodPost, "/oracle/callback", oracle, gin.H{"request_id": id, "output": "100"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["attempt"].(map[string]interface{})["won"])

	code, body = env.do(t, http.MethodPost, "/oracle/callback", oracle, gin.H{"request_id": id, "output": "5"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "RequestAlreadyFulfilled", body["code"])

	code, body = env.do(t, http.MethodGet, "/api/game/winner", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, alice, common.HexToAddress(body["winner"].(string)))
	assert.Equal(t, "please", body["prompt"])

	code, body = env.do(t, http.MethodPost, "/api/attempts", env.token(t, bob, services.RolePlayer), submitBody("100"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "WinnerAlreadyDeclared", body["code"])

	code, body = env.do(t, http.MethodGet, "/api/balance", player, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "9990", body["balance"].(map[string]interface{})["balance"])
}

func TestSubmitRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.token(t, alice, services.RolePlayer)

	code, body := env.do(t, http.MethodPost, "/api/attempts", player, submitBody("99"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InsufficientFee", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/attempts", player, gin.H{"model_id": 11, "amount": "100"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidRequest", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/attempts", player, submitBody("lots"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidRequest", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/attempts", player, gin.H{"prompt": "x", "model_id": 3, "amount": "100"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "UnsupportedModel", body["code"])

	env.advance(time.Hour)
	code, body = env.do(t, http.MethodPost, "/api/attempts", player, submitBody("100"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "GameEnded", body["code"])
	assert.Equal(t, 0, env.store.count())
}

func TestRefundFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.token(t, alice, services.RolePlayer)

	code, _ := env.do(t, http.MethodPost, "/api/attempts", player, submitBody("100"))
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodPost, "/api/attempts", player, submitBody("100"))
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodPost, "/api/refund", player, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "GameInProgress", body["code"])

	env.advance(10 * time.Minute)

	code, body = env.do(t, http.MethodGet, "/api/me", player, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["refund_eligible"])
	assert.Equal(t, float64(2), body["attempts"])
	assert.Equal(t, float64(2), body["pending_attempts"])

	code, body = env.do(t, http.MethodPost, "/api/refund", player, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "180", body["refund"].(map[string]interface{})["amount"])

	code, body = env.do(t, http.MethodPost, "/api/refund", player, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "AlreadyRefunded", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/refund", env.token(t, bob, services.RolePlayer), nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NotAParticipant", body["code"])

	code, body = env.do(t, http.MethodGet, "/api/attempts", player, nil)
	require.Equal(t, http.StatusOK, code)
	list := body["attempts"].([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, true, list[1].(map[string]interface{})["refunded"])
}

func TestRefundTransferFailureIsPersisted(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.token(t, alice, services.RolePlayer)

	code, _ := env.do(t, http.MethodPost, "/api/attempts", player, submitBody("100"))
	require.Equal(t, http.StatusOK, code)
	saves := env.store.count()

	env.advance(10 * time.Minute)
	env.vault.SetRejecting(alice, true)

	code, body := env.do(t, http.MethodPost, "/api/refund", player, nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "TransferFailed", body["code"])
	assert.Equal(t, saves+1, env.store.count())
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.token(t, adminAddr, services.RoleAdmin)

	code, _ := env.do(t, http.MethodPut, "/admin/min-slippage", env.token(t, alice, services.RolePlayer), gin.H{"percent": 10})
	assert.Equal(t, http.StatusForbidden, code)

	// Admin role on the wrong address is stopped by the ledger.
	code, body := env.do(t, http.MethodPut, "/admin/min-slippage", env.token(t, alice, services.RoleAdmin), gin.H{"percent": 10})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Unauthorized", body["code"])

	code, _ = env.do(t, http.MethodPut, "/admin/min-slippage", admin, gin.H{"percent": 10})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, env.ledger.MinSlippagePercent())

	code, body = env.do(t, http.MethodPut, "/admin/min-slippage", admin, gin.H{"percent": 150})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidConfiguration", body["code"])

	code, _ = env.do(t, http.MethodPut, "/admin/min-slippage", admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPut, "/admin/models/50/gas-budget", admin, gin.H{"gas_budget": 8_000_000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(8_000_000), env.ledger.CallbackGasBudget(50))

	code, _ = env.do(t, http.MethodPut, "/admin/models/x/gas-budget", admin, gin.H{"gas_budget": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	wallet := common.HexToAddress("0x00000000000000000000000000000000000000d2")
	code, _ = env.do(t, http.MethodPut, "/admin/developer-wallet", admin, gin.H{"wallet": wallet.Hex()})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, wallet, env.ledger.DeveloperWallet())

	code, body = env.do(t, http.MethodPut, "/admin/developer-wallet", admin, gin.H{"wallet": "nobody"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidConfiguration", body["code"])

	code, body = env.do(t, http.MethodPut, "/admin/config", admin, gin.H{
		"base_fee":                "200",
		"fee_increment":           "0",
		"fee_ceiling":             "1000",
		"duration_seconds":        600,
		"pool_share_percent":      80,
		"developer_share_percent": 20,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidConfiguration", body["code"])

	code, body = env.do(t, http.MethodPut, "/admin/config", admin, gin.H{
		"base_fee":                "200",
		"fee_increment":           "0",
		"fee_ceiling":             "1000",
		"duration_seconds":        300,
		"pool_share_percent":      80,
		"developer_share_percent": 20,
	})
	require.Equal(t, http.StatusOK, code, body)
	cfg := env.ledger.Config()
	assert.Equal(t, 5*time.Minute, cfg.Duration)
	assert.Equal(t, 80, cfg.PoolSharePercent)
	assert.Equal(t, int64(200), env.ledger.CurrentFee().Int64())
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), cfg.StartTime.UTC(), "start time kept")

	code, body = env.do(t, http.MethodPost, "/admin/deposits", admin, gin.H{"address": bob.Hex(), "amount": "5"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "10005", body["balance"].(map[string]interface{})["balance"])

	assert.Equal(t, 4, env.store.count())
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &denyAfter{limit: 1, calls: map[string]int{}})
	player := env.token(t, alice, services.RolePlayer)

	code, _ := env.do(t, http.MethodPost, "/api/attempts", player, submitBody("100"))
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodPost, "/api/attempts", player, submitBody("100"))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, float64(60), body["retry_after"])

	// Reads are not limited.
	code, _ = env.do(t, http.MethodGet, "/api/attempts", player, nil)
	assert.Equal(t, http.StatusOK, code)
}
