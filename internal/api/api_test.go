package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/creditledger/internal/auth"
	"github.com/fastprodman/creditledger/internal/infra/logging"
	memstore "github.com/fastprodman/creditledger/internal/repos/credits/memory"
	"github.com/fastprodman/creditledger/internal/services/eligibility"
	"github.com/fastprodman/creditledger/internal/services/ledger"
	"github.com/fastprodman/creditledger/internal/services/refund"
)

type testEnv struct {
	server   *httptest.Server
	ledger   *ledger.Ledger
	resolver *auth.JWTResolver
}

func newTestEnv(t *testing.T, startingCredits int64) *testEnv {
	t.Helper()

	log := logging.Discard()

	l := ledger.New(memstore.New(), ledger.WithStartingCredits(startingCredits), ledger.WithLogger(log))

	resolver, err := auth.NewJWTResolver("api-test-secret")
	require.NoError(t, err)

	svc := Services{
		Ledger:      l,
		Eligibility: eligibility.New(l, eligibility.WithLogger(log)),
		Refunds:     refund.New(l, log),
	}

	srv := httptest.NewServer(NewRouter(svc, resolver, log))
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, ledger: l, resolver: resolver}
}

func (e *testEnv) token(t *testing.T, id auth.Identity) string {
	t.Helper()

	tok, err := e.resolver.Issue(id, time.Hour)
	require.NoError(t, err)

	return tok
}

func (e *testEnv) do(t *testing.T, id *auth.Identity, method, path, body string, headers ...string) (int, map[string]any, http.Header) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	if id != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, *id))
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	return resp.StatusCode, out, resp.Header
}

func user() *auth.Identity {
	return &auth.Identity{UserID: uuid.New(), Role: auth.RoleUser}
}

func admin() *auth.Identity {
	return &auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)

	status, body, _ := env.do(t, nil, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_RequiresToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)

	status, body, _ := env.do(t, nil, http.MethodGet, "/v1/credits/balance", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotEmpty(t, body["error"])

	status, _, _ = env.do(t, nil, http.MethodGet, "/v1/credits/balance", "", "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRouter_BalanceProvisionsOnFirstContact(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 3)
	u := user()

	status, body, _ := env.do(t, u, http.MethodGet, "/v1/credits/balance", "")
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 3, body["credits"], 0)
	assert.Equal(t, "You have 3 credits remaining", body["message"])
}

func TestRouter_StartSessionUntilEmpty(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 3)
	u := user()

	for _, want := range []float64{2, 1, 0} {
		status, body, _ := env.do(t, u, http.MethodPost, "/v1/sessions/start", `{"cost":1}`)
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, true, body["started"])
		assert.InDelta(t, want, body["balance"], 0)

		txn, ok := body["transaction"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "debit", txn["kind"])
		assert.Equal(t, ledger.ReasonSessionStart, txn["reason"])
	}

	status, body, _ := env.do(t, u, http.MethodPost, "/v1/sessions/start", "")
	require.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, false, body["started"])
	assert.InDelta(t, 0, body["balance"], 0)
	assert.InDelta(t, 1, body["requiredCredits"], 0)
	assert.Contains(t, body["error"], "Insufficient credits")

	status, body, _ = env.do(t, u, http.MethodGet, "/v1/credits/transactions?limit=2", "")
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 3, body["total"], 0)
	assert.Len(t, body["transactions"], 2)
}

func TestRouter_StartSessionIdempotencyHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 3)
	u := user()

	status, first, _ := env.do(t, u, http.MethodPost, "/v1/sessions/start", "", "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, first["replayed"])

	status, second, _ := env.do(t, u, http.MethodPost, "/v1/sessions/start", "", "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, second["replayed"])
	assert.InDelta(t, 2, second["balance"], 0)

	status, _, _ = env.do(t, u, http.MethodPost, "/v1/sessions/start", `{"cost":2,"idempotencyKey":"k-1"}`)
	assert.Equal(t, http.StatusConflict, status)

	balance, err := env.ledger.GetBalance(t.Context(), u.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)
}

func TestRouter_StartSessionBadBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 3)
	u := user()

	tests := []struct {
		name string
		body string
	}{
		{name: "not_json", body: `{`},
		{name: "unknown_field", body: `{"price":1}`},
		{name: "negative_cost", body: `{"cost":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := env.do(t, u, http.MethodPost, "/v1/sessions/start", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, body["error"])
		})
	}

	balance, err := env.ledger.GetBalance(t.Context(), u.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)
}

func TestRouter_Transactions_Pagination(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	u := user()

	for _, q := range []string{"limit=0", "limit=101", "offset=-1", "limit=abc"} {
		status, _, _ := env.do(t, u, http.MethodGet, "/v1/credits/transactions?"+q, "")
		assert.Equal(t, http.StatusBadRequest, status, q)
	}

	status, body, _ := env.do(t, u, http.MethodGet, "/v1/credits/transactions", "")
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 20, body["limit"], 0)
	assert.InDelta(t, 0, body["offset"], 0)
	assert.Empty(t, body["transactions"])
}

func TestRouter_Eligibility(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)
	u := user()

	status, body, _ := env.do(t, u, http.MethodGet, "/v1/credits/eligibility", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["eligible"])
	assert.InDelta(t, 2, body["credits"], 0)
	assert.InDelta(t, 1, body["requiredCredits"], 0)

	status, body, _ = env.do(t, u, http.MethodGet, "/v1/credits/eligibility?requiredCredits=3", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["eligible"])
	assert.Equal(t, eligibility.ReasonInsufficientCredits, body["reason"])

	status, _, _ = env.do(t, u, http.MethodGet, "/v1/credits/eligibility?requiredCredits=0", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_Refund(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	u := user()
	a := admin()

	// first contact provisions the target account
	status, _, _ := env.do(t, u, http.MethodGet, "/v1/credits/balance", "")
	require.Equal(t, http.StatusOK, status)

	body := fmt.Sprintf(`{"userId":%q,"amount":5,"reason":"goodwill"}`, u.UserID)

	status, _, _ = env.do(t, u, http.MethodPost, "/v1/admin/refunds", body)
	assert.Equal(t, http.StatusForbidden, status)

	status, resp, _ := env.do(t, a, http.MethodPost, "/v1/admin/refunds", body)
	require.Equal(t, http.StatusOK, status, resp)
	assert.InDelta(t, 5, resp["credits"], 0)
	assert.Equal(t, "Successfully refunded 5 credits. New balance: 5 credits", resp["message"])

	txn, ok := resp["transaction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "credit", txn["kind"])
	assert.Equal(t, a.UserID.String(), txn["actorId"])

	status, resp, _ = env.do(t, a, http.MethodPost, "/v1/admin/refunds", `{"userId":"nope","amount":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp["details"], "userId")
	assert.Contains(t, resp["details"], "amount")
	assert.Contains(t, resp["details"], "reason")

	missing := fmt.Sprintf(`{"userId":%q,"amount":5,"reason":"goodwill"}`, uuid.New())
	status, _, _ = env.do(t, a, http.MethodPost, "/v1/admin/refunds", missing)
	assert.Equal(t, http.StatusNotFound, status)

	page, err := env.ledger.ListTransactions(t.Context(), u.UserID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestRouter_Audit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)
	u := user()
	a := admin()

	status, _, _ := env.do(t, u, http.MethodPost, "/v1/sessions/start", "")
	require.Equal(t, http.StatusOK, status)

	path := "/v1/admin/accounts/" + u.UserID.String() + "/audit"

	status, _, _ = env.do(t, u, http.MethodGet, path, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body, _ := env.do(t, a, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["consistent"])
	assert.InDelta(t, 1, body["balance"], 0)
	assert.InDelta(t, 1, body["transactionCount"], 0)

	status, _, _ = env.do(t, a, http.MethodGet, "/v1/admin/accounts/not-a-uuid/audit", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = env.do(t, a, http.MethodGet, "/v1/admin/accounts/"+uuid.NewString()+"/audit", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWriteServiceError(t *testing.T) {
	t.Parallel()

	h := NewHandler(Services{}, logging.Discard())

	tests := []struct {
		err        error
		status     int
		retryAfter bool
	}{
		{err: refund.ErrForbidden, status: http.StatusForbidden},
		{err: fmt.Errorf("get balance: %w", ledger.ErrAccountNotFound), status: http.StatusNotFound},
		{err: &ledger.InsufficientCreditsError{Current: 0, Required: 1}, status: http.StatusPaymentRequired},
		{err: ledger.ErrInvalidAmount, status: http.StatusBadRequest},
		{err: ledger.ErrInvalidReason, status: http.StatusBadRequest},
		{err: ledger.ErrInvalidPagination, status: http.StatusBadRequest},
		{err: ledger.ErrIdempotencyKeyReused, status: http.StatusConflict},
		{err: ledger.ErrBalanceLimitExceeded, status: http.StatusUnprocessableEntity},
		{err: fmt.Errorf("debit: %w", ledger.ErrLedgerBusy), status: http.StatusServiceUnavailable, retryAfter: true},
		{err: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			h.writeServiceError(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)

			if tt.retryAfter {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}
}
