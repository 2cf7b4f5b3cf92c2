package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/config"
	"github.com/ignatzorin/bounty-escrow/internal/http/handlers"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/service"
)

var (
	admin      = common.HexToAddress("0xa0")
	treasury   = common.HexToAddress("0xa1")
	client     = common.HexToAddress("0xc1")
	freelancer = common.HexToAddress("0xf1")
	arbitrator = common.HexToAddress("0xb1")
)

type api struct {
	t      *testing.T
	engine *gin.Engine
	tokens map[common.Address]string
}

func newAPI(t *testing.T, env string) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sys := service.NewSystem(ledger.New(nil))
	require.NoError(t, sys.Bootstrap(context.Background(), service.Genesis{
		Admin:    admin,
		Treasury: treasury,
		FeeBps:   500,
		Grants:   map[authz.Role][]common.Address{authz.RoleArbitrator: {arbitrator}},
	}))
	tokens := service.NewTokenManager("router-secret", time.Hour)

	cfg := &config.Config{Env: env, RateLimitLimit: 1000, RateLimitPeriod: time.Minute}
	engine := SetupRouter(cfg, Handlers{
		Auth:       handlers.NewAuthHandler(tokens, sys),
		Bounty:     handlers.NewBountyHandler(sys.Registry, nil),
		Submission: handlers.NewSubmissionHandler(sys.Submissions),
		Dispute:    handlers.NewDisputeHandler(sys.Disputes, nil),
		Reputation: handlers.NewReputationHandler(sys.Oracle, sys.Registry),
		Escrow:     handlers.NewEscrowHandler(sys.Escrow),
		Admin:      handlers.NewAdminHandler(sys, nil),
		Health:     handlers.NewHealthHandler(nil, sys),
	}, tokens)

	return &api{t: t, engine: engine, tokens: map[common.Address]string{}}
}

// login получает токен через dev-token.
func (a *api) login(addr common.Address) {
	w := a.call(http.MethodPost, "/api/auth/dev-token", nil, map[string]any{"address": addr.Hex()})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &tok))
	a.tokens[addr] = tok.AccessToken
}

func (a *api) call(method, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+a.tokens[*caller])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func field(t *testing.T, w *httptest.ResponseRecorder, key string) any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out[key]
}

func TestRouter_DisputeFlowEndToEnd(t *testing.T) {
	a := newAPI(t, "development")
	for _, addr := range []common.Address{admin, client, freelancer, arbitrator} {
		a.login(addr)
	}

	w := a.call(http.MethodPost, "/api/bounties", &client, map[string]any{
		"value":             "4",
		"requirements_hash": "0x7e9a",
		"deadline":          time.Now().Add(10 * 24 * time.Hour).UTC().Format(time.RFC3339),
		"max_revisions":     1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "0.2", field(t, w, "platform_fee"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/api/bounties/1/claim", &freelancer, nil).Code)
	require.Equal(t, http.StatusCreated, a.call(http.MethodPost, "/api/bounties/1/submission", &freelancer, map[string]any{"work_hash": "0x3c01"}).Code)
	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/api/submissions/1/review", &client, nil).Code)

	w = a.call(http.MethodPost, "/api/disputes", &client, map[string]any{
		"bounty_id":     1,
		"submission_id": 1,
		"reason":        "quality_issues",
		"evidence_hash": "0xe71d",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "4", field(t, w, "locked_amount"))

	w = a.call(http.MethodPost, "/api/disputes/1/resolve", &freelancer, map[string]any{"outcome": "split"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/api/disputes/1/assign", &arbitrator, nil).Code)
	w = a.call(http.MethodPost, "/api/disputes/1/resolve", &arbitrator, map[string]any{
		"outcome":        "partial_payment",
		"freelancer_pct": 75,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "resolved", field(t, w, "status"))

	// 75% от 4 за вычетом 5% комиссии
	w = a.call(http.MethodGet, "/api/escrow/account", &freelancer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2.85", field(t, w, "available"))

	w = a.call(http.MethodGet, "/api/escrow/account", &client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", field(t, w, "available"))

	w = a.call(http.MethodGet, "/api/escrow/fees", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0.15", field(t, w, "balance"))

	w = a.call(http.MethodGet, "/api/admin/audit", &admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, field(t, w, "balanced"))

	w = a.call(http.MethodGet, "/api/reputation/"+client.Hex()+"/disputes", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, field(t, w, "initiated"))
}

func TestRouter_DevTokenHiddenInProduction(t *testing.T) {
	a := newAPI(t, "production")

	w := a.call(http.MethodPost, "/api/auth/dev-token", nil, map[string]any{"address": admin.Hex()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	a := newAPI(t, "development")

	assert.Equal(t, http.StatusOK, a.call(http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, a.call(http.MethodGet, "/metrics", nil, nil).Code)
	assert.Equal(t, http.StatusOK, a.call(http.MethodGet, "/api/bounties", nil, nil).Code)
	assert.Equal(t, http.StatusOK, a.call(http.MethodGet, "/api/pause", nil, nil).Code)

	assert.Equal(t, http.StatusUnauthorized, a.call(http.MethodGet, "/api/escrow/account", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.call(http.MethodGet, "/api/bounties/0", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.call(http.MethodGet, "/api/reputation/0x12", nil, nil).Code)
}
