package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
	"bankist-ledger/internal/ledger"
	"bankist-ledger/internal/service"
	"bankist-ledger/internal/session"
)

const testToken = "token-js"

type fakeAccounts struct {
	movements []domain.Movement
	revoked   []int64
	loggedOut []string
}

func (f *fakeAccounts) Login(_ context.Context, username, pin string) (*service.LoginResult, error) {
	if username != "js" || pin != "1111" {
		return nil, errors.ErrInvalidCredential
	}
	return &service.LoginResult{
		Account:   &domain.Account{ID: 1, Username: "js", Owner: "Jonas Schmedtmann", InterestRate: decimal.RequireFromString("1.2")},
		Movements: f.movements,
		Summary:   ledger.Summarize(f.movements, decimal.RequireFromString("1.2")),
		Session:   &session.Session{Token: testToken, AccountID: 1, ExpiresAt: time.Now().Add(5 * time.Minute)},
	}, nil
}

func (f *fakeAccounts) Authenticate(_ context.Context, token string) (*session.Session, error) {
	switch token {
	case testToken:
		return &session.Session{Token: token, AccountID: 1, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
	case "":
		return nil, errors.ErrInvalidCredential
	default:
		return nil, errors.ErrSessionExpired
	}
}

func (f *fakeAccounts) Logout(_ context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, token)
	return nil
}

func (f *fakeAccounts) EndSessions(_ context.Context, accountID int64) error {
	f.revoked = append(f.revoked, accountID)
	return nil
}

func (f *fakeAccounts) Movements(_ context.Context, accountID int64) ([]domain.Movement, error) {
	if accountID != 1 {
		return nil, errors.ErrAccountNotFound
	}
	return f.movements, nil
}

func (f *fakeAccounts) Summary(_ context.Context, accountID int64) (*service.AccountSummary, error) {
	if accountID != 1 {
		return nil, errors.ErrAccountNotFound
	}
	return &service.AccountSummary{
		Account: &domain.Account{ID: 1},
		Summary: ledger.Summarize(f.movements, decimal.RequireFromString("1.2")),
	}, nil
}

type fakeLedger struct {
	transfers []*service.TransferRequest
	loans     []*service.LoanRequest
	closes    []*service.CloseRequest
	err       error
}

func (f *fakeLedger) Transfer(_ context.Context, req *service.TransferRequest) error {
	f.transfers = append(f.transfers, req)
	return f.err
}

func (f *fakeLedger) RequestLoan(_ context.Context, req *service.LoanRequest) (*domain.Movement, error) {
	f.loans = append(f.loans, req)
	if f.err != nil {
		return nil, f.err
	}
	m := domain.NewDeposit(req.AccountID, ledger.NormalizeLoanAmount(req.Amount))
	m.ID = 99
	return m, nil
}

func (f *fakeLedger) CloseAccount(_ context.Context, req *service.CloseRequest) error {
	f.closes = append(f.closes, req)
	return f.err
}

type testAPI struct {
	router   *mux.Router
	accounts *fakeAccounts
	ledger   *fakeLedger
}

func newTestAPI() *testAPI {
	accounts := &fakeAccounts{
		movements: []domain.Movement{
			*domain.NewDeposit(1, decimal.NewFromInt(200)),
			*domain.NewWithdrawal(1, decimal.NewFromInt(400)),
			*domain.NewDeposit(1, decimal.NewFromInt(3000)),
		},
	}
	engine := &fakeLedger{}

	authHandler := NewAuthHandler(accounts)
	accountHandler := NewAccountHandler(accounts)
	ledgerHandler := NewLedgerHandler(engine, accounts, zap.NewNop())

	router := mux.NewRouter()
	router.HandleFunc("/api/login", authHandler.Login).Methods(http.MethodPost)
	router.HandleFunc("/api/logout", authHandler.Logout).Methods(http.MethodPost)
	router.HandleFunc("/api/users/{account_id}", ledgerHandler.CloseAccount).Methods(http.MethodDelete)

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(RequireSession(accounts))
	protected.HandleFunc("/accounts/{account_id}/movements", accountHandler.GetMovements).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{account_id}/summary", accountHandler.GetSummary).Methods(http.MethodGet)
	protected.HandleFunc("/transfer", ledgerHandler.Transfer).Methods(http.MethodPost)
	protected.HandleFunc("/loan", ledgerHandler.RequestLoan).Methods(http.MethodPost)

	return &testAPI{router: router, accounts: accounts, ledger: engine}
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func errorCode(t *testing.T, envelope map[string]interface{}) string {
	t.Helper()
	errBody, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok, "expected error envelope, got %v", envelope)
	return errBody["code"].(string)
}

func TestLogin(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/login", "", `{"username":"js","pin":"1111"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "js", data["account"].(map[string]interface{})["username"])
	assert.Len(t, data["movements"], 3)
	assert.Equal(t, "2800.00", data["summary"].(map[string]interface{})["balance"])
	assert.Equal(t, testToken, data["session"].(map[string]interface{})["token"])
	assert.NotEmpty(t, data["session"].(map[string]interface{})["expires_at"])
}

func TestLoginRejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"wrong pin", `{"username":"js","pin":"9999"}`, http.StatusUnauthorized, "invalid_credential"},
		{"unknown user", `{"username":"nobody","pin":"1111"}`, http.StatusUnauthorized, "invalid_credential"},
		{"missing pin", `{"username":"js"}`, http.StatusBadRequest, "invalid_input"},
		{"malformed body", `{"username":`, http.StatusBadRequest, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			rec, body := api.do(t, http.MethodPost, "/api/login", "", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodGet, "/api/accounts/1/movements", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credential", errorCode(t, body))

	rec, body = api.do(t, http.MethodGet, "/api/accounts/1/movements", "stale", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credential", errorCode(t, body))

	rec, body = api.do(t, http.MethodGet, "/api/accounts/2/movements", testToken, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credential", errorCode(t, body))
}

func TestGetMovements(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodGet, "/api/accounts/1/movements", testToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	movements := body["data"].([]interface{})
	require.Len(t, movements, 3)
	assert.Equal(t, "200.00", movements[0].(map[string]interface{})["amount"])

	rec, body = api.do(t, http.MethodGet, "/api/accounts/1/movements?sort=amount", testToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	movements = body["data"].([]interface{})
	var amounts []string
	for _, m := range movements {
		amounts = append(amounts, m.(map[string]interface{})["amount"].(string))
	}
	assert.Equal(t, []string{"-400.00", "200.00", "3000.00"}, amounts)
	assert.Equal(t, "withdrawal", movements[0].(map[string]interface{})["type"])

	// sorting is a view; the service's slice keeps its order
	assert.True(t, api.accounts.movements[0].Amount.Equal(decimal.NewFromInt(200)))
}

func TestGetMovementsInvalidID(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodGet, "/api/accounts/abc/movements", testToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, body))
}

func TestGetSummary(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodGet, "/api/accounts/1/summary", testToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "2800.00", data["balance"])
	assert.Equal(t, "3200.00", data["total_in"])
	assert.Equal(t, "400.00", data["total_out"])
	assert.Equal(t, "38.40", data["interest"])
}

func TestTransfer(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/transfer", testToken, `{"to_username":"jd","amount":"100.50"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Transfer successful", body["data"].(map[string]interface{})["message"])

	require.Len(t, api.ledger.transfers, 1)
	got := api.ledger.transfers[0]
	assert.Equal(t, int64(1), got.SourceAccountID)
	assert.Equal(t, "jd", got.DestinationUsername)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("100.50")))
}

func TestTransferAcceptsNumericAmountAndExplicitSource(t *testing.T) {
	api := newTestAPI()

	rec, _ := api.do(t, http.MethodPost, "/api/transfer", testToken, `{"from_account_id":1,"to_username":"jd","amount":50}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, api.ledger.transfers, 1)
	assert.True(t, api.ledger.transfers[0].Amount.Equal(decimal.NewFromInt(50)))
}

func TestTransferRejections(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		engineErr error
		status    int
		code      string
	}{
		{"foreign source account", `{"from_account_id":2,"to_username":"jd","amount":10}`, nil, http.StatusUnauthorized, "invalid_credential"},
		{"non numeric amount", `{"to_username":"jd","amount":"ten"}`, nil, http.StatusBadRequest, "invalid_amount"},
		{"boolean amount", `{"to_username":"jd","amount":true}`, nil, http.StatusBadRequest, "invalid_amount"},
		{"null amount", `{"to_username":"jd","amount":null}`, nil, http.StatusBadRequest, "invalid_amount"},
		{"missing amount", `{"to_username":"jd"}`, nil, http.StatusBadRequest, "invalid_amount"},
		{"huge exponent", `{"to_username":"jd","amount":1e10000000}`, nil, http.StatusBadRequest, "invalid_amount"},
		{"huge exponent string", `{"to_username":"jd","amount":"1e10000000"}`, nil, http.StatusBadRequest, "invalid_amount"},
		{"beyond column range", `{"to_username":"jd","amount":10000000000000}`, nil, http.StatusBadRequest, "invalid_amount"},
		{"missing recipient", `{"amount":10}`, nil, http.StatusBadRequest, "invalid_input"},
		{"insufficient funds", `{"to_username":"jd","amount":10}`, errors.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
		{"self transfer", `{"to_username":"js","amount":10}`, errors.ErrSelfTransfer, http.StatusBadRequest, "self_transfer"},
		{"unknown recipient", `{"to_username":"zz","amount":10}`, errors.ErrRecipientNotFound, http.StatusBadRequest, "recipient_not_found"},
		{"storage failure", `{"to_username":"jd","amount":10}`, errors.NewStorageFailure("boom", assert.AnError), http.StatusInternalServerError, "storage_failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			api.ledger.err = tt.engineErr

			rec, body := api.do(t, http.MethodPost, "/api/transfer", testToken, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestStorageFailureHidesDetails(t *testing.T) {
	api := newTestAPI()
	api.ledger.err = errors.NewStorageFailure("failed to insert movement", assert.AnError)

	_, body := api.do(t, http.MethodPost, "/api/transfer", testToken, `{"to_username":"jd","amount":10}`)
	errBody := body["error"].(map[string]interface{})
	_, hasDetails := errBody["details"]
	assert.False(t, hasDetails)
}

func TestRequestLoan(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/loan", testToken, `{"amount":1000.7}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Loan approved", data["message"])
	assert.Equal(t, "1000.00", data["movement"].(map[string]interface{})["amount"])
	assert.Equal(t, "deposit", data["movement"].(map[string]interface{})["type"])
	require.Len(t, api.ledger.loans, 1)
	assert.Equal(t, int64(1), api.ledger.loans[0].AccountID)
}

func TestRequestLoanMalformedAmount(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"text", `{"amount":"abc"}`},
		{"boolean", `{"amount":false}`},
		{"object", `{"amount":{"value":1}}`},
		{"missing", `{}`},
		{"huge exponent", `{"amount":1e10000000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()

			start := time.Now()
			rec, body := api.do(t, http.MethodPost, "/api/loan", testToken, tt.body)
			assert.Less(t, time.Since(start), 100*time.Millisecond)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_amount", errorCode(t, body))
			assert.Empty(t, api.ledger.loans)
		})
	}
}

func TestRequestLoanDenied(t *testing.T) {
	api := newTestAPI()
	api.ledger.err = errors.ErrLoanDenied

	rec, body := api.do(t, http.MethodPost, "/api/loan", testToken, `{"amount":100000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "loan_denied", errorCode(t, body))
}

func TestCloseAccount(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodDelete, "/api/users/1", testToken, `{"username":"js","pin":"1111"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Account closed successfully", body["data"].(map[string]interface{})["message"])

	require.Len(t, api.ledger.closes, 1)
	assert.Equal(t, &service.CloseRequest{AccountID: 1, Username: "js", PIN: "1111"}, api.ledger.closes[0])
	assert.Equal(t, []int64{1}, api.accounts.revoked)
}

func TestCloseAccountRejectionsAreBadRequest(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		token     string
		body      string
		engineErr error
		status    int
		code      string
	}{
		{"wrong pin", "/api/users/1", testToken, `{"username":"js","pin":"0000"}`, errors.ErrInvalidCredential, http.StatusBadRequest, "invalid_credential"},
		{"no session", "/api/users/1", "", `{"username":"js","pin":"1111"}`, nil, http.StatusBadRequest, "invalid_credential"},
		{"other account", "/api/users/2", testToken, `{"username":"jd","pin":"2222"}`, nil, http.StatusBadRequest, "invalid_credential"},
		{"bad id", "/api/users/x", testToken, `{"username":"js","pin":"1111"}`, nil, http.StatusBadRequest, "invalid_input"},
		{"missing pin", "/api/users/1", testToken, `{"username":"js"}`, nil, http.StatusBadRequest, "invalid_input"},
		{"storage failure", "/api/users/1", testToken, `{"username":"js","pin":"1111"}`, errors.NewStorageFailure("boom", assert.AnError), http.StatusInternalServerError, "storage_failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			api.ledger.err = tt.engineErr

			rec, body := api.do(t, http.MethodDelete, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, body))
			assert.Empty(t, api.accounts.revoked)
		})
	}
}

func TestLogout(t *testing.T) {
	api := newTestAPI()

	rec, _ := api.do(t, http.MethodPost, "/api/logout", testToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{testToken}, api.accounts.loggedOut)
}
