package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/punchamoorthee/minledger/internal/cache"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/punchamoorthee/minledger/internal/service"
	"github.com/punchamoorthee/minledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router *mux.Router
	store  *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	logger := zap.NewNop()
	h := NewHandler(
		service.NewAccountService(mem, service.RandomNumbers, 10, logger),
		service.NewTransferService(mem, cache.Nop{}, logger),
		service.NewQueryService(mem, cache.Nop{}, logger),
		mem,
		logger,
	)
	return &testServer{router: NewRouter(h), store: mem}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (s *testServer) createAccount(t *testing.T, name, balance string) domain.Account {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/api/v1/accounts", map[string]string{"name": name, "initial_balance": balance})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[domain.Account](t, rr)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestAccountEndpoints(t *testing.T) {
	s := newTestServer(t)
	a := s.createAccount(t, "alice", "100.50")
	assert.Equal(t, domain.AccountActive, a.Status)
	assert.Len(t, a.AccountNumber, 8)

	rr := s.do(t, http.MethodGet, "/api/v1/accounts/"+a.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, a.ID, decode[domain.Account](t, rr).ID)

	rr = s.do(t, http.MethodGet, "/api/v1/accounts/"+a.ID.String()+"/balance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	bal := decode[balanceResponse](t, rr)
	assert.Equal(t, "100.5", bal.Balance.String())

	rr = s.do(t, http.MethodPut, "/api/v1/accounts/"+a.ID.String()+"/balance", map[string]string{"balance": "7"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "7", decode[domain.Account](t, rr).Balance.String())

	rr = s.do(t, http.MethodPut, "/api/v1/accounts/"+a.ID.String()+"/status", map[string]string{"status": "blocked"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.AccountBlocked, decode[domain.Account](t, rr).Status)

	rr = s.do(t, http.MethodGet, "/api/v1/accounts?status=BLOCKED", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.Account](t, rr), 1)

	rr = s.do(t, http.MethodGet, "/api/v1/accounts?status=ACTIVE", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = s.do(t, http.MethodGet, "/api/v1/accounts/search?keyword=ali&size=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[domain.Page[domain.Account]](t, rr)
	assert.EqualValues(t, 1, page.TotalElements)
	assert.Equal(t, 5, page.Size)

	rr = s.do(t, http.MethodDelete, "/api/v1/accounts/"+a.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do(t, http.MethodGet, "/api/v1/accounts/"+a.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorResponse](t, rr).Code)
}

func TestAccountValidation(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/v1/accounts", map[string]string{"name": "bob", "initial_balance": "-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "INVALID_OPERATION", decode[errorResponse](t, rr).Code)

	rr = s.do(t, http.MethodPost, "/api/v1/accounts", map[string]string{"initial_balance": "1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/accounts", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "BAD_REQUEST", decode[errorResponse](t, rr).Code)

	rr = s.do(t, http.MethodGet, "/api/v1/accounts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	a := s.createAccount(t, "carol", "0")
	rr = s.do(t, http.MethodPut, "/api/v1/accounts/"+a.ID.String()+"/status", map[string]string{"status": "frozen"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "INVALID_OPERATION", decode[errorResponse](t, rr).Code)

	rr = s.do(t, http.MethodGet, "/api/v1/accounts/search?size=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = s.do(t, http.MethodGet, "/api/v1/accounts/search?page=x", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func transferBody(from, to uuid.UUID, amount string) map[string]string {
	return map[string]string{
		"sender_account_id":   from.String(),
		"receiver_account_id": to.String(),
		"amount":              amount,
		"message":             "rent",
	}
}

func TestTransferEndpoint(t *testing.T) {
	s := newTestServer(t)
	a := s.createAccount(t, "alice", "1000")
	b := s.createAccount(t, "bob", "500")

	rr := s.do(t, http.MethodPost, "/api/v1/transactions", transferBody(a.ID, b.ID, "200"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tx := decode[domain.Transaction](t, rr)
	assert.Equal(t, "/api/v1/transactions/"+tx.ID.String(), rr.Header().Get("Location"))
	assert.Equal(t, domain.TransactionSuccess, tx.Status)
	assert.Equal(t, "rent", tx.Message)

	rr = s.do(t, http.MethodGet, "/api/v1/accounts/"+a.ID.String()+"/balance", nil)
	assert.Equal(t, "800", decode[balanceResponse](t, rr).Balance.String())
	rr = s.do(t, http.MethodGet, "/api/v1/accounts/"+b.ID.String()+"/balance", nil)
	assert.Equal(t, "700", decode[balanceResponse](t, rr).Balance.String())

	rr = s.do(t, http.MethodGet, "/api/v1/transactions/"+tx.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, tx.ID, decode[domain.Transaction](t, rr).ID)
}

func TestTransferErrors(t *testing.T) {
	s := newTestServer(t)
	a := s.createAccount(t, "alice", "10")
	b := s.createAccount(t, "bob", "0")

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"insufficient funds", transferBody(a.ID, b.ID, "11"), http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{"zero amount", transferBody(a.ID, b.ID, "0"), http.StatusUnprocessableEntity, "INVALID_OPERATION"},
		{"negative amount", transferBody(a.ID, b.ID, "-3"), http.StatusUnprocessableEntity, "INVALID_OPERATION"},
		{"self transfer", transferBody(a.ID, a.ID, "1"), http.StatusUnprocessableEntity, "INVALID_OPERATION"},
		{"unknown receiver", transferBody(a.ID, uuid.New(), "1"), http.StatusNotFound, "NOT_FOUND"},
		{"missing sender", map[string]string{"receiver_account_id": b.ID.String(), "amount": "1"}, http.StatusUnprocessableEntity, "INVALID_OPERATION"},
		{"malformed amount", `{"sender_account_id":"` + a.ID.String() + `","receiver_account_id":"` + b.ID.String() + `","amount":"ten"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown field", `{"from":1}`, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/v1/transactions", tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.code, decode[errorResponse](t, rr).Code)
		})
	}

	rr := s.do(t, http.MethodGet, "/api/v1/accounts/"+a.ID.String()+"/balance", nil)
	assert.Equal(t, "10", decode[balanceResponse](t, rr).Balance.String())
}

func TestTransferIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	a := s.createAccount(t, "alice", "100")
	b := s.createAccount(t, "bob", "0")

	rr := s.do(t, http.MethodPost, "/api/v1/transactions", transferBody(a.ID, b.ID, "30"), IdempotencyKeyHeader, "abc")
	require.Equal(t, http.StatusCreated, rr.Code)
	first := decode[domain.Transaction](t, rr)

	rr = s.do(t, http.MethodPost, "/api/v1/transactions", transferBody(a.ID, b.ID, "30"), IdempotencyKeyHeader, "abc")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, first.ID, decode[domain.Transaction](t, rr).ID)

	rr = s.do(t, http.MethodPost, "/api/v1/transactions", transferBody(a.ID, b.ID, "40"), IdempotencyKeyHeader, "abc")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/accounts/"+a.ID.String()+"/balance", nil)
	assert.Equal(t, "70", decode[balanceResponse](t, rr).Balance.String())

	rr = s.do(t, http.MethodDelete, "/api/v1/transactions/"+first.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do(t, http.MethodPost, "/api/v1/transactions", transferBody(a.ID, b.ID, "30"), IdempotencyKeyHeader, "abc")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "CONFLICT", decode[errorResponse](t, rr).Code)
}

func TestOversizedPageIsRejected(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "alice", "1")

	rr := s.do(t, http.MethodGet, "/api/v1/accounts/search?page=4611686018427387904&size=2", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "INVALID_OPERATION", decode[errorResponse](t, rr).Code)
}

func TestStoreFailureIsHidden(t *testing.T) {
	s := newTestServer(t)
	a := s.createAccount(t, "alice", "100")
	b := s.createAccount(t, "bob", "0")

	s.store.FailOn("transactions.save", errors.New("pq: connection refused on 10.0.0.7"))
	rr := s.do(t, http.MethodPost, "/api/v1/transactions", transferBody(a.ID, b.ID, "1"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decode[errorResponse](t, rr)
	assert.Equal(t, "STORE_FAILURE", resp.Code)
	assert.NotContains(t, resp.Error, "10.0.0.7")
}

func TestTransactionQueries(t *testing.T) {
	s := newTestServer(t)
	a := s.createAccount(t, "alice", "100")
	b := s.createAccount(t, "bob", "100")

	for _, body := range []map[string]string{
		transferBody(a.ID, b.ID, "10"),
		transferBody(a.ID, b.ID, "5"),
		transferBody(b.ID, a.ID, "1"),
	} {
		rr := s.do(t, http.MethodPost, "/api/v1/transactions", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := s.do(t, http.MethodGet, "/api/v1/transactions/account/"+a.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.Transaction](t, rr), 3)

	rr = s.do(t, http.MethodGet, "/api/v1/transactions/user/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = s.do(t, http.MethodGet, "/api/v1/transactions/account/"+a.ID.String()+"/total", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "16", decode[totalResponse](t, rr).TotalAmount.String())

	rr = s.do(t, http.MethodGet, "/api/v1/transactions/account/"+b.ID.String()+"/count", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 3, decode[countResponse](t, rr).Count)

	today := time.Now().UTC().Format(domain.DateLayout)
	rr = s.do(t, http.MethodGet, "/api/v1/transactions/daily-summary?date="+today, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rows := decode[[]domain.DailySummary](t, rr)
	assert.Len(t, rows, 2)

	rr = s.do(t, http.MethodGet, "/api/v1/transactions/date-range?start_date="+today+"&end_date="+today+"&account_id="+b.ID.String()+"&size=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[domain.Page[domain.Transaction]](t, rr)
	assert.EqualValues(t, 3, page.TotalElements)
	assert.Len(t, page.Items, 2)

	rr = s.do(t, http.MethodGet, "/api/v1/transactions/date-range?start_date=2024-02-02&end_date=2024-02-01", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = s.do(t, http.MethodGet, "/api/v1/transactions/date-range?start_date=02/01/2024&end_date=2024-02-01", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = s.do(t, http.MethodGet, "/api/v1/transactions/daily-summary", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransactionStatusAndDeleteEndpoints(t *testing.T) {
	s := newTestServer(t)
	a := s.createAccount(t, "alice", "100")
	b := s.createAccount(t, "bob", "0")

	rr := s.do(t, http.MethodPost, "/api/v1/transactions", transferBody(a.ID, b.ID, "10"))
	require.Equal(t, http.StatusCreated, rr.Code)
	tx := decode[domain.Transaction](t, rr)

	rr = s.do(t, http.MethodPut, "/api/v1/transactions/"+tx.ID.String()+"/status", map[string]string{"status": "failed"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.TransactionFailed, decode[domain.Transaction](t, rr).Status)

	rr = s.do(t, http.MethodDelete, "/api/v1/transactions/"+tx.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do(t, http.MethodDelete, "/api/v1/transactions/"+tx.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/accounts/"+b.ID.String()+"/balance", nil)
	assert.True(t, decode[balanceResponse](t, rr).Balance.Equal(decimal.NewFromInt(10)))
}
