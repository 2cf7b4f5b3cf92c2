package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/http/middleware"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/repository"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/storage"
)

var (
	admin      = common.HexToAddress("0xa0")
	treasury   = common.HexToAddress("0xa1")
	client     = common.HexToAddress("0xc1")
	freelancer = common.HexToAddress("0xf1")
	arbitrator = common.HexToAddress("0xb1")
)

type testEnv struct {
	t      *testing.T
	sys    *service.System
	tokens *service.TokenManager
	engine *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sys := service.NewSystem(ledger.New(nil))
	require.NoError(t, sys.Bootstrap(context.Background(), service.Genesis{
		Admin:    admin,
		Treasury: treasury,
		FeeBps:   1000,
		Grants:   map[authz.Role][]common.Address{authz.RoleArbitrator: {arbitrator}},
	}))

	env := &testEnv{
		t:      t,
		sys:    sys,
		tokens: service.NewTokenManager("test-secret", time.Hour),
		engine: gin.New(),
	}
	env.engine.Use(middleware.ErrorHandler())
	return env
}

// protected регистрирует маршрут за AuthMiddleware.
func (e *testEnv) protected(method, path string, h gin.HandlerFunc) {
	e.engine.Handle(method, path, middleware.AuthMiddleware(e.tokens), h)
}

func (e *testEnv) token(addr common.Address) string {
	tok, err := e.tokens.Issue(addr)
	require.NoError(e.t, err)
	return tok.Token
}

func (e *testEnv) do(method, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(*caller))
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func bountyBody(value string) map[string]any {
	return map[string]any{
		"value":             value,
		"requirements_hash": "0x7e9a",
		"deadline":          time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339),
	}
}

func (e *testEnv) bountyRoutes(advisory *service.AdvisoryService) {
	h := NewBountyHandler(e.sys.Registry, advisory)
	e.protected(http.MethodPost, "/bounties", h.CreateBounty)
	e.protected(http.MethodPost, "/bounties/:id/claim", h.ClaimBounty)
	e.protected(http.MethodGet, "/bounties/:id/candidates", h.RankCandidates)
	e.engine.GET("/bounties", h.ListBounties)
	e.engine.GET("/bounties/:id", h.GetBounty)
}

func TestBountyHandler_CreateRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	env.bountyRoutes(nil)

	w := env.do(http.MethodPost, "/bounties", nil, bountyBody("1"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBountyHandler_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	env.bountyRoutes(nil)

	w := env.do(http.MethodPost, "/bounties", &client, bountyBody("1.5"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "1.5", created["escrow_amount"])
	assert.Equal(t, "0.15", created["platform_fee"])
	assert.Equal(t, "open", created["status"])
	assert.NotContains(t, created, "claimed_by")

	w = env.do(http.MethodGet, "/bounties/1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	// адреса в JSON кодируются в нижнем регистре
	assert.Equal(t, strings.ToLower(client.Hex()), decode(t, w)["client"])

	w = env.do(http.MethodGet, "/bounties?status=open&client="+client.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

func TestBountyHandler_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	env.bountyRoutes(nil)

	cases := map[string]map[string]any{
		"negative value": bountyBody("-1"),
		"garbage value":  bountyBody("one"),
		"bad hash": func() map[string]any {
			b := bountyBody("1")
			b["requirements_hash"] = "req"
			return b
		}(),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/bounties", &client, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid-input", decode(t, w)["kind"])
		})
	}

	// сумма ниже минимальной отклоняется доменом
	w := env.do(http.MethodPost, "/bounties", &client, bountyBody("0.001"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid-escrow-amount", decode(t, w)["kind"])
}

func TestBountyHandler_ClaimRejections(t *testing.T) {
	env := newTestEnv(t)
	env.bountyRoutes(nil)

	body := bountyBody("1")
	body["min_rep_required"] = 500
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/bounties", &client, body).Code)

	w := env.do(http.MethodPost, "/bounties/1/claim", &client, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, "/bounties/1/claim", &freelancer, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "insufficient-reputation", resp["kind"])
	details := resp["details"].(map[string]any)
	assert.EqualValues(t, 500, details["required"])
	assert.EqualValues(t, 0, details["actual"])

	w = env.do(http.MethodPost, "/bounties/abc/claim", &freelancer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/bounties/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBountyHandler_CandidatesWithoutAdvisor(t *testing.T) {
	env := newTestEnv(t)
	env.bountyRoutes(nil)

	w := env.do(http.MethodGet, "/bounties/1/candidates", &client, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubmissionAndEscrowFlow(t *testing.T) {
	env := newTestEnv(t)
	env.bountyRoutes(nil)
	subs := NewSubmissionHandler(env.sys.Submissions)
	escrow := NewEscrowHandler(env.sys.Escrow)
	env.protected(http.MethodPost, "/bounties/:id/submission", subs.SubmitWork)
	env.protected(http.MethodPost, "/submissions/:id/review", subs.StartReview)
	env.protected(http.MethodPost, "/submissions/:id/accept", subs.AcceptSubmission)
	env.protected(http.MethodPost, "/submissions/:id/reject", subs.RejectSubmission)
	env.protected(http.MethodGet, "/escrow/account", escrow.GetMyAccount)
	env.protected(http.MethodPost, "/escrow/withdrawals", escrow.Withdraw)
	env.engine.GET("/bounties/:id/escrow", escrow.GetBountyEscrow)

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/bounties", &client, bountyBody("2")).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/bounties/1/claim", &freelancer, nil).Code)

	w := env.do(http.MethodPost, "/bounties/1/submission", &freelancer, map[string]any{"work_hash": "0x3c01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/bounties/1/escrow", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", decode(t, w)["balance"])

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/submissions/1/review", &client, nil).Code)

	// отклонение без отзыва запрещено
	w = env.do(http.MethodPost, "/submissions/1/reject", &client, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid-feedback", decode(t, w)["kind"])

	w = env.do(http.MethodPost, "/submissions/1/accept", &client, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "accepted", decode(t, w)["status"])

	w = env.do(http.MethodGet, "/escrow/account", &freelancer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.8", decode(t, w)["available"])

	w = env.do(http.MethodPost, "/escrow/withdrawals", &freelancer, map[string]any{"amount": "5"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient-balance", decode(t, w)["kind"])

	w = env.do(http.MethodPost, "/escrow/withdrawals", &freelancer, map[string]any{"amount": "1.8"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "1.8", decode(t, w)["amount"])
	assert.True(t, env.sys.Audit().Balanced)
}

func TestAdminHandler_PauseBlocksRegistry(t *testing.T) {
	env := newTestEnv(t)
	env.bountyRoutes(nil)
	h := NewAdminHandler(env.sys, nil)
	env.protected(http.MethodPost, "/admin/pause", h.Pause)
	env.protected(http.MethodPost, "/admin/unpause", h.Unpause)
	env.protected(http.MethodGet, "/admin/audit", h.Audit)
	env.protected(http.MethodGet, "/events", h.MyEvents)

	w := env.do(http.MethodPost, "/admin/pause", &client, map[string]any{"component": "registry"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, "/admin/pause", &admin, map[string]any{"component": "registry"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/bounties", &client, bountyBody("1"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "system-paused", decode(t, w)["kind"])

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/admin/unpause", &admin, map[string]any{"component": "registry"}).Code)
	assert.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/bounties", &client, bountyBody("1")).Code)

	w = env.do(http.MethodGet, "/admin/audit", &client, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do(http.MethodGet, "/admin/audit", &admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	audit := decode(t, w)
	assert.Equal(t, true, audit["balanced"])
	assert.Equal(t, "1", audit["custodied"])

	// журнал не подключён
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/events", &client, nil).Code)
}

type fakeEvents struct {
	got repository.EventFilter
}

func (f *fakeEvents) ListEvents(_ context.Context, filter repository.EventFilter) ([]entity.Event, error) {
	f.got = filter
	return []entity.Event{{Type: entity.EventBountyCreated, Parties: []common.Address{*filter.Party}}}, nil
}

func TestAdminHandler_MyEventsFiltersByCaller(t *testing.T) {
	env := newTestEnv(t)
	events := &fakeEvents{}
	h := NewAdminHandler(env.sys, events)
	env.protected(http.MethodGet, "/events", h.MyEvents)

	w := env.do(http.MethodGet, "/events?limit=5&type=bounty-created", &client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, events.got.Party)
	assert.Equal(t, client, *events.got.Party)
	assert.Equal(t, 5, events.got.Limit)
	assert.Equal(t, "bounty-created", events.got.Type)

	w = env.do(http.MethodGet, "/events?limit=-1", &client, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisputeHandler_ResolveValidation(t *testing.T) {
	env := newTestEnv(t)
	h := NewDisputeHandler(env.sys.Disputes, nil)
	env.protected(http.MethodPost, "/disputes", h.InitiateDispute)
	env.protected(http.MethodPost, "/disputes/:id/resolve", h.ResolveDispute)
	env.protected(http.MethodPost, "/disputes/:id/analyze", h.AnalyzeDispute)
	env.engine.GET("/disputes", h.ListDisputes)

	w := env.do(http.MethodPost, "/disputes", &client, map[string]any{
		"bounty_id": 1, "reason": "bored", "evidence_hash": "0xe",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/disputes/1/resolve", &arbitrator, map[string]any{"outcome": "everything"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/disputes/1/resolve", &arbitrator, map[string]any{"outcome": "split"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodPost, "/disputes/1/analyze", &client, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/disputes?status=lost", nil, nil).Code)

	w = env.do(http.MethodGet, "/disputes", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["items"])
}

func TestReputationHandler_ReadEndpoints(t *testing.T) {
	env := newTestEnv(t)
	h := NewReputationHandler(env.sys.Oracle, env.sys.Registry)
	env.engine.GET("/reputation/:address", h.GetReputation)
	env.engine.GET("/reputation/:address/tier", h.GetTier)
	env.protected(http.MethodPost, "/reputation", h.UpdateReputation)

	w := env.do(http.MethodGet, "/reputation/"+freelancer.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rep := decode(t, w)
	assert.Equal(t, "bronze", rep["tier"])
	assert.Equal(t, "0", rep["total_earnings"])

	w = env.do(http.MethodGet, "/reputation/"+freelancer.Hex()+"/tier", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tier := decode(t, w)
	assert.EqualValues(t, 2, tier["max_concurrent"])
	assert.Equal(t, "500", tier["max_bounty_value"])

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/reputation/nope", nil, nil).Code)

	w = env.do(http.MethodPost, "/reputation", &client, map[string]any{
		"user": freelancer.Hex(), "quality": 100, "signature": "0x1234",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid-signature", decode(t, w)["kind"])
}

type fakeEvidenceStore struct {
	files map[string][]byte
	err   error
}

func (f *fakeEvidenceStore) Save(_ context.Context, r io.Reader) (*storage.Evidence, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	hash := "0x" + strings.Repeat("ab", 32)
	f.files[hash] = data
	return &storage.Evidence{Hash: hash, MIME: "text/plain", Size: int64(len(data))}, nil
}

func (f *fakeEvidenceStore) Open(_ context.Context, hash string) (io.ReadCloser, error) {
	data, ok := f.files[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeEvidenceStore) MaxUploadBytes() int64 { return 1 << 20 }

type fakeEvidenceIndex struct {
	rows map[string]repository.EvidenceFile
}

func (f *fakeEvidenceIndex) Create(_ context.Context, file *repository.EvidenceFile) (*repository.EvidenceFile, error) {
	if existing, ok := f.rows[file.Hash]; ok {
		return &existing, nil
	}
	f.rows[file.Hash] = *file
	return file, nil
}

func (f *fakeEvidenceIndex) GetByHash(_ context.Context, hash string) (*repository.EvidenceFile, error) {
	row, ok := f.rows[hash]
	if !ok {
		return nil, repository.ErrEvidenceNotFound
	}
	return &row, nil
}

func (f *fakeEvidenceIndex) ListByUploader(_ context.Context, uploader common.Address, _, _ int) ([]repository.EvidenceFile, error) {
	var out []repository.EvidenceFile
	for _, row := range f.rows {
		if row.Uploader == uploader.Hex() {
			out = append(out, row)
		}
	}
	return out, nil
}

func upload(env *testEnv, caller common.Address, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "evidence.txt")
	require.NoError(env.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(env.t, err)
	require.NoError(env.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/evidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(caller))
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	return w
}

func TestEvidenceHandler_UploadDownload(t *testing.T) {
	env := newTestEnv(t)
	store := &fakeEvidenceStore{files: map[string][]byte{}}
	index := &fakeEvidenceIndex{rows: map[string]repository.EvidenceFile{}}
	h := NewEvidenceHandler(store, index)
	env.protected(http.MethodPost, "/evidence", h.Upload)
	env.protected(http.MethodGet, "/evidence", h.ListMine)
	env.engine.GET("/evidence/:hash", h.Download)

	w := upload(env, client, "переписка с исполнителем")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	hash := decode(t, w)["hash"].(string)
	assert.Equal(t, client.Hex(), index.rows[hash].Uploader)

	w = env.do(http.MethodGet, "/evidence/"+strings.ToUpper(hash[2:]), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/evidence/"+hash, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "переписка с исполнителем", w.Body.String())

	w = env.do(http.MethodGet, "/evidence", &client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	store.err = storage.ErrUnsupportedType
	w = upload(env, client, "x")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.err = errors.New("disk full")
	w = upload(env, client, "x")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "внутренняя ошибка сервера", decode(t, w)["error"])
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	healthy := NewHealthHandler(stubPinger{}, env.sys)
	broken := NewHealthHandler(stubPinger{err: errors.New("connection refused")}, env.sys)
	env.engine.GET("/health", healthy.Health)
	env.engine.GET("/health/broken", broken.Health)

	w := env.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	checks := decode(t, w)["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "balanced", checks["ledger"])

	w = env.do(http.MethodGet, "/health/broken", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthHandler_DevTokenAndMe(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.tokens, env.sys)
	env.engine.POST("/auth/dev-token", h.DevToken)
	env.protected(http.MethodGet, "/auth/me", h.Me)

	w := env.do(http.MethodPost, "/auth/dev-token", nil, map[string]any{"address": "0x123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/auth/dev-token", nil, map[string]any{"address": admin.Hex()})
	require.Equal(t, http.StatusOK, w.Code)
	tok := decode(t, w)
	assert.EqualValues(t, 3600, tok["expires_in"])

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok["access_token"].(string))
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)
	assert.Equal(t, strings.ToLower(admin.Hex()), me["address"])
	assert.Equal(t, []any{"ADMIN", "PAUSER"}, me["roles"])
}
