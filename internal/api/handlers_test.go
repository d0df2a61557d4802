package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bankingapp/transaction-service/internal/app"
	"github.com/bankingapp/transaction-service/internal/domain"
	"github.com/bankingapp/transaction-service/internal/store"
	"github.com/bankingapp/transaction-service/pkg/directoryclient"
	"github.com/bankingapp/transaction-service/pkg/ledgerclient"
)

// stubLedger keeps balances in a plain map. Handler tests drive single
// requests, so no locking is needed here.
type stubLedger struct {
	balances   map[string]int64
	creditFail error
}

func (l *stubLedger) GetBalance(ctx context.Context, identity string) (int64, error) {
	balance, ok := l.balances[identity]
	if !ok {
		return 0, ledgerclient.ErrAccountNotFound
	}
	return balance, nil
}

func (l *stubLedger) Credit(ctx context.Context, identity string, amount int64) (int64, error) {
	if l.creditFail != nil {
		return 0, l.creditFail
	}
	l.balances[identity] += amount
	return l.balances[identity], nil
}

func (l *stubLedger) Debit(ctx context.Context, identity string, amount int64) (int64, error) {
	balance, ok := l.balances[identity]
	if !ok {
		return 0, ledgerclient.ErrAccountNotFound
	}
	if balance < amount {
		return 0, ledgerclient.ErrInsufficientFunds
	}
	l.balances[identity] = balance - amount
	return l.balances[identity], nil
}

type stubDirectory struct {
	identities map[string]bool
}

func (d *stubDirectory) Exists(ctx context.Context, identity string) error {
	if !d.identities[identity] {
		return directoryclient.ErrUserNotFound
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func newTestRouter(ledger *stubLedger, directory *stubDirectory) (http.Handler, *store.MemoryLog) {
	logStore := store.NewMemoryLog()
	svc := app.NewService(logStore, ledger, directory, noopPublisher{}, "banking.events")
	return TransactionRoutes(NewTransactionHandlers(svc)), logStore
}

func postTransaction(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	return body
}

func TestCreateTransactionDeposit(t *testing.T) {
	ledger := &stubLedger{balances: map[string]int64{"alice": 1000}}
	router, _ := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"alice": true}})

	rr := postTransaction(t, router, `{"from":"alice","amount":500,"type":"deposit"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["message"] != "Transaction completed" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	tx, ok := body["transaction"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected transaction object, got %v", body["transaction"])
	}
	if tx["from"] != "alice" || tx["to"] != domain.SinkIdentity {
		t.Fatalf("unexpected parties: from=%v to=%v", tx["from"], tx["to"])
	}
	if tx["type"] != domain.KindDeposit || tx["status"] != domain.StatusCompleted {
		t.Fatalf("unexpected kind/status: %v/%v", tx["type"], tx["status"])
	}
	if ledger.balances["alice"] != 1500 {
		t.Fatalf("expected balance 1500, got %d", ledger.balances["alice"])
	}
}

func TestCreateTransactionInsufficientFunds(t *testing.T) {
	ledger := &stubLedger{balances: map[string]int64{"alice": 100, "bob": 1000}}
	router, logStore := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"alice": true, "bob": true}})

	rr := postTransaction(t, router, `{"from":"alice","to":"bob","amount":300,"type":"transfer"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["error"] != "Insufficient funds" {
		t.Fatalf("unexpected error body: %v", body["error"])
	}

	count, _ := logStore.Count(context.Background())
	if count != 0 {
		t.Fatalf("expected no record appended, got %d", count)
	}
}

func TestCreateTransactionUnknownSender(t *testing.T) {
	ledger := &stubLedger{balances: map[string]int64{"bob": 1000}}
	router, _ := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"bob": true}})

	rr := postTransaction(t, router, `{"from":"ghost","to":"bob","amount":100,"type":"transfer"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["error"] != "User not found" {
		t.Fatalf("unexpected error body: %v", body["error"])
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing sender", `{"amount":100,"type":"deposit"}`},
		{"missing type", `{"from":"alice","amount":100}`},
		{"zero amount", `{"from":"alice","amount":0,"type":"deposit"}`},
		{"unknown type", `{"from":"alice","amount":100,"type":"loan"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &stubLedger{balances: map[string]int64{"alice": 1000}}
			router, _ := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"alice": true}})

			rr := postTransaction(t, router, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if body["error"] == "" {
				t.Fatal("expected error message in body")
			}
		})
	}
}

func TestCreateTransactionInvalidJSON(t *testing.T) {
	ledger := &stubLedger{balances: map[string]int64{}}
	router, _ := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{}})

	rr := postTransaction(t, router, `{"from":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCreateTransactionPartialFailure(t *testing.T) {
	ledger := &stubLedger{
		balances:   map[string]int64{"alice": 1000, "bob": 1000},
		creditFail: errors.New("ledger unreachable"),
	}
	router, logStore := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"alice": true, "bob": true}})

	rr := postTransaction(t, router, `{"from":"alice","to":"bob","amount":300,"type":"transfer"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["code"] != "partial_failure" {
		t.Fatalf("expected partial_failure code, got %v", body["code"])
	}
	if body["transaction_id"] == nil || body["transaction_id"] == "" {
		t.Fatal("expected transaction_id in partial failure body")
	}

	// The failed record is in the log for reconciliation.
	all, _ := logStore.All(context.Background())
	if len(all) != 1 || all[0].Status != domain.StatusFailed {
		t.Fatalf("expected one failed record, got %+v", all)
	}
}

// A partial failure can wrap an upstream sentinel (a credit answered 404
// after the debit landed). The response must still carry the partial_failure
// body; mapping the wrapped sentinel to a plain 404 would tell the client
// nothing happened while the sender's funds are gone.
func TestCreateTransactionPartialFailureNotMaskedBySentinel(t *testing.T) {
	ledger := &stubLedger{
		balances:   map[string]int64{"alice": 1000, "bob": 1000},
		creditFail: ledgerclient.ErrAccountNotFound,
	}
	router, logStore := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"alice": true, "bob": true}})

	rr := postTransaction(t, router, `{"from":"alice","to":"bob","amount":300,"type":"transfer"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["code"] != "partial_failure" {
		t.Fatalf("expected partial_failure code, got %v", body["code"])
	}
	if body["transaction_id"] == nil || body["transaction_id"] == "" {
		t.Fatal("expected transaction_id in partial failure body")
	}

	if ledger.balances["alice"] != 700 {
		t.Fatalf("expected debit to have landed, alice balance %d", ledger.balances["alice"])
	}
	all, _ := logStore.All(context.Background())
	if len(all) != 1 || all[0].Status != domain.StatusFailed {
		t.Fatalf("expected one failed record, got %+v", all)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	ledger := &stubLedger{balances: map[string]int64{"alice": 1000, "bob": 1000}}
	router, _ := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"alice": true, "bob": true}})

	for _, body := range []string{
		`{"from":"alice","to":"bob","amount":100,"type":"transfer"}`,
		`{"from":"bob","amount":50,"type":"withdrawal"}`,
	} {
		if rr := postTransaction(t, router, body); rr.Code != http.StatusCreated {
			t.Fatalf("setup transaction failed: %d %s", rr.Code, rr.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/transactions/alice", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := decodeBody(t, rr)
	if body["identity"] != "alice" {
		t.Fatalf("unexpected identity: %v", body["identity"])
	}
	transactions, ok := body["transactions"].([]interface{})
	if !ok || len(transactions) != 1 {
		t.Fatalf("expected 1 transaction for alice, got %v", body["transactions"])
	}
}

func TestListEndpoint(t *testing.T) {
	ledger := &stubLedger{balances: map[string]int64{"alice": 1000}}
	router, _ := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"alice": true}})

	if rr := postTransaction(t, router, `{"from":"alice","amount":100,"type":"deposit"}`); rr.Code != http.StatusCreated {
		t.Fatalf("setup transaction failed: %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := decodeBody(t, rr)
	transactions, ok := body["transactions"].([]interface{})
	if !ok || len(transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %v", body["transactions"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	ledger := &stubLedger{balances: map[string]int64{"alice": 1000}}
	router, _ := newTestRouter(ledger, &stubDirectory{identities: map[string]bool{"alice": true}})

	if rr := postTransaction(t, router, `{"from":"alice","amount":100,"type":"deposit"}`); rr.Code != http.StatusCreated {
		t.Fatalf("setup transaction failed: %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := decodeBody(t, rr)
	if body["status"] != "Online" {
		t.Fatalf("unexpected status: %v", body["status"])
	}
	if body["service"] != "Transaction Service" {
		t.Fatalf("unexpected service name: %v", body["service"])
	}
	if body["total_transactions"] != float64(1) {
		t.Fatalf("expected total_transactions 1, got %v", body["total_transactions"])
	}
}
