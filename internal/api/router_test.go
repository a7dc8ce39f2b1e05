package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gw-lending/internal/api/middleware"
	"gw-lending/internal/assets"
	"gw-lending/internal/cache"
	"gw-lending/internal/identity"
	"gw-lending/internal/ledger"
	"gw-lending/internal/metrics"
	"gw-lending/internal/operation"
	"gw-lending/internal/rates"
	"gw-lending/internal/service"
	"gw-lending/internal/storages/memory"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000707170")
	tokenAddr    = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
)

type apiEnv struct {
	router *gin.Engine
	svc    *service.LendingService
	ledger *ledger.Memory
	jwt    *middleware.JWTMiddleware
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := metrics.New()
	sessions := identity.NewOpenProvider(time.Hour)
	mem := ledger.NewMemory(contractAddr, tokenAddr)

	svc := service.NewLendingService(service.Deps{
		Ledger:     mem,
		Contract:   contractAddr,
		Collateral: assets.Asset{Symbol: assets.Collateral, ChainID: assets.ChainBaseSepolia, Address: tokenAddr, Decimals: 6},
		Rates:      rates.DefaultTable(),
		Identity:   sessions,
		Storage:    memory.New(),
		Balances:   cache.NewBalanceCache(time.Minute),
		Operations: operation.NewRegistry(time.Hour),
		Metrics:    m,
		Logger:     logger,
	})

	jwtMiddleware := middleware.NewJWTMiddleware("test-secret", logger)
	return &apiEnv{
		router: SetupRouter(svc, sessions, jwtMiddleware, m, logger, gin.TestMode, time.Hour),
		svc:    svc,
		ledger: mem,
		jwt:    jwtMiddleware,
	}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (e *apiEnv) connect(t *testing.T) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/v1/connect", "", gin.H{"address": ownerAddr.Hex()})
	require.Equal(t, http.StatusOK, code, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// reviewerToken создает первого проверяющего так же, как при старте
// сервиса, и входит под ним
func (e *apiEnv) reviewerToken(t *testing.T, username, password string) string {
	t.Helper()
	created, err := e.svc.EnsureReviewer(context.Background(), username, username+"@example.com", password)
	require.NoError(t, err)
	require.True(t, created)

	code, body := e.do(t, http.MethodPost, "/api/v1/reviewers/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, code, body)
	return body["token"].(string)
}

func usdc(s string) *big.Int {
	return ledger.ToUnits(decimal.RequireFromString(s), 6)
}

func TestPublicRoutes(t *testing.T) {
	e := newAPIEnv(t)

	code, body := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = e.do(t, http.MethodGet, "/api/v1/currencies", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "BOB", body["default"])
	currencies := body["currencies"].([]interface{})
	require.Len(t, currencies, 4)
	for _, raw := range currencies {
		cur := raw.(map[string]interface{})
		if cur["code"] == "BOB" {
			assert.Equal(t, "0x424f42"+strings.Repeat("0", 58), cur["bytes32"])
		}
	}

	code, body = e.do(t, http.MethodGet, "/api/v1/banks", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["banks"], len(service.BolivianBanks))
}

func TestWalletRoutesRequireToken(t *testing.T) {
	e := newAPIEnv(t)

	code, _ := e.do(t, http.MethodGet, "/api/v1/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/balance", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	reviewerToken, err := e.jwt.GenerateReviewerToken(1, "alice", time.Hour)
	require.NoError(t, err)
	code, _ = e.do(t, http.MethodGet, "/api/v1/balance", reviewerToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	// токен без открытой сессии
	walletToken, err := e.jwt.GenerateWalletToken(ownerAddr, time.Hour)
	require.NoError(t, err)
	code, _ = e.do(t, http.MethodGet, "/api/v1/balance", walletToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/connect", "", gin.H{"address": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDisconnectEndsSession(t *testing.T) {
	e := newAPIEnv(t)
	token := e.connect(t)

	code, _ := e.do(t, http.MethodGet, "/api/v1/borrow/limit", token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/disconnect", token, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/borrow/limit", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSupplyWithoutAllowance(t *testing.T) {
	e := newAPIEnv(t)
	token := e.connect(t)
	e.ledger.Mint(ownerAddr, usdc("10"))

	code, body := e.do(t, http.MethodGet, "/api/v1/allowance?amount=5", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["needs_approval"])

	code, body = e.do(t, http.MethodPost, "/api/v1/supply", token, gin.H{"amount": "5"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, contractAddr.Hex(), body["spender"])

	code, body = e.do(t, http.MethodPost, "/api/v1/supply", token, gin.H{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "amount", body["field"])

	code, _ = e.do(t, http.MethodPost, "/api/v1/supply", token, gin.H{"amount": "abc"})
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Empty(t, e.ledger.Writes())
}

func TestLendingFlow(t *testing.T) {
	e := newAPIEnv(t)
	token := e.connect(t)
	e.ledger.Mint(ownerAddr, usdc("100"))

	code, body := e.do(t, http.MethodPost, "/api/v1/deposit?wait=true", token, gin.H{"amount": "50"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "confirmed", body["phase"])

	code, body = e.do(t, http.MethodGet, "/api/v1/balance", token, nil)
	require.Equal(t, http.StatusOK, code)
	collateral := body["collateral"].(map[string]interface{})
	assert.Equal(t, "50", collateral["amount"])

	code, body = e.do(t, http.MethodGet, "/api/v1/borrow/limit?currency=bob", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "You can borrow up to Bs 300.00 BOB", body["message"])

	destination := gin.H{"kind": "bank", "bank_name": "Banco Union", "account_number": "1002003001"}

	code, body = e.do(t, http.MethodPost, "/api/v1/borrow", token, gin.H{"amount": "301", "currency": "BOB", "destination": destination})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "amount", body["field"])

	code, body = e.do(t, http.MethodPost, "/api/v1/borrow", token, gin.H{"amount": "10", "currency": "BOB", "destination": gin.H{"kind": "bank"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "destination", body["field"])

	code, body = e.do(t, http.MethodPost, "/api/v1/borrow?wait=true", token, gin.H{"amount": "300", "currency": "BOB", "destination": destination})
	require.Equal(t, http.StatusOK, code, body)
	opID := body["id"].(string)
	position := body["result"].(map[string]interface{})["position"].(map[string]interface{})
	positionID := int64(position["id"].(float64))

	code, body = e.do(t, http.MethodGet, "/api/v1/operations/"+opID, token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "borrow", body["kind"])

	code, _ = e.do(t, http.MethodGet, "/api/v1/operations/unknown", token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = e.do(t, http.MethodGet, "/api/v1/positions", token, nil)
	require.Equal(t, http.StatusOK, code)
	positions := body["positions"].([]interface{})
	require.Len(t, positions, 1)
	assert.Equal(t, "300.00", positions[0].(map[string]interface{})["remaining_display"])

	repayPath := "/api/v1/positions/" + jsonNumber(positionID) + "/repay"

	code, body = e.do(t, http.MethodPost, repayPath, token, gin.H{"amount": "400"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "300", body["remaining"])

	code, body = e.do(t, http.MethodPost, repayPath+"?wait=true", token, gin.H{"amount": "100"})
	require.Equal(t, http.StatusOK, code, body)

	code, body = e.do(t, http.MethodGet, "/api/v1/positions/"+jsonNumber(positionID), token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "200", body["remaining"])

	code, _ = e.do(t, http.MethodGet, "/api/v1/positions/999", token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/positions/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// квитанция об оплате вне сети
	code, body = e.do(t, http.MethodPost, "/api/v1/positions/"+jsonNumber(positionID)+"/receipts", token,
		gin.H{"amount": "50", "image_ref": "uploads/receipt-1.jpg"})
	require.Equal(t, http.StatusCreated, code, body)
	receiptID := body["id"].(string)

	code, body = e.do(t, http.MethodGet, "/api/v1/positions/"+jsonNumber(positionID)+"/receipts", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["receipts"], 1)
	assert.Equal(t, "submitted", body["receipts"].([]interface{})[0].(map[string]interface{})["status"])

	adminToken := e.reviewerToken(t, "admin", "admin-pass")

	code, _ = e.do(t, http.MethodPost, "/api/v1/reviewers/register", adminToken,
		gin.H{"username": "alice", "email": "alice@example.com", "password": "secret-pass"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/reviewers/register", adminToken,
		gin.H{"username": "alice", "email": "other@example.com", "password": "secret-pass"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/reviewers/login", "", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = e.do(t, http.MethodPost, "/api/v1/reviewers/login", "", gin.H{"username": "alice", "password": "secret-pass"})
	require.Equal(t, http.StatusOK, code)
	reviewerToken := body["token"].(string)

	code, _ = e.do(t, http.MethodGet, "/api/v1/review/receipts", token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = e.do(t, http.MethodGet, "/api/v1/review/receipts?status=submitted", reviewerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["receipts"], 1)

	code, _ = e.do(t, http.MethodPost, "/api/v1/review/receipts/"+receiptID+"/verify", reviewerToken, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = e.do(t, http.MethodPost, "/api/v1/review/receipts/"+receiptID+"/start", reviewerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "under_review", body["status"])

	code, body = e.do(t, http.MethodPost, "/api/v1/review/receipts/"+receiptID+"/verify", reviewerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "verified", body["status"])
	assert.Equal(t, "alice", body["reviewer"])

	code, body = e.do(t, http.MethodGet, "/api/v1/positions/"+jsonNumber(positionID), token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "150", body["remaining"])

	code, body = e.do(t, http.MethodGet, "/api/v1/receipts", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["receipts"], 1)
	assert.Equal(t, "verified", body["receipts"].([]interface{})[0].(map[string]interface{})["status"])

	code, body = e.do(t, http.MethodGet, "/api/v1/operations", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["operations"], 3)

	code, _ = e.do(t, http.MethodPost, "/api/v1/review/receipts/"+receiptID+"/reject", reviewerToken, gin.H{"reason": "late"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestReviewerRegistrationRequiresReviewer(t *testing.T) {
	e := newAPIEnv(t)
	mallory := gin.H{"username": "mallory", "email": "mallory@example.com", "password": "secret-pass"}

	code, _ := e.do(t, http.MethodPost, "/api/v1/reviewers/register", "", mallory)
	assert.Equal(t, http.StatusUnauthorized, code)

	walletToken := e.connect(t)
	code, _ = e.do(t, http.MethodPost, "/api/v1/reviewers/register", walletToken, mallory)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/reviewers/login", "", gin.H{"username": "mallory", "password": "secret-pass"})
	assert.Equal(t, http.StatusUnauthorized, code)

	adminToken := e.reviewerToken(t, "admin", "admin-pass")
	code, _ = e.do(t, http.MethodPost, "/api/v1/reviewers/register", adminToken, mallory)
	assert.Equal(t, http.StatusCreated, code)

	created, err := e.svc.EnsureReviewer(context.Background(), "admin", "admin@example.com", "other-pass")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestOwnerReceiptsAreScoped(t *testing.T) {
	e := newAPIEnv(t)
	token := e.connect(t)

	code, body := e.do(t, http.MethodGet, "/api/v1/receipts", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["receipts"])

	code, _ = e.do(t, http.MethodGet, "/api/v1/positions/42/receipts", token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/receipts?position=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/receipts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMetricsRoute(t *testing.T) {
	e := newAPIEnv(t)
	e.do(t, http.MethodGet, "/health", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `gw_lending_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func jsonNumber(n int64) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}
