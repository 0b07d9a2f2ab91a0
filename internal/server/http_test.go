package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"DexLedger/internal/asset"
	"DexLedger/internal/client"
	"DexLedger/internal/eventlog"
	"DexLedger/internal/exchange"
	"DexLedger/internal/observability"
	"DexLedger/internal/testutil"
	"DexLedger/internal/views"
)

func newTestServer(t *testing.T) (*Server, *exchange.Engine, *views.Projector) {
	t.Helper()

	evlog := eventlog.New()
	engine := exchange.NewEngine(evlog, exchange.NopCustody{}, testutil.FeeAccount, 10, nil)
	gateway := client.NewGateway(engine)
	projector := views.NewProjector(nil)
	registry := asset.NewRegistry()
	registry.Register(testutil.Token, "DEX", 18)

	srv := NewServer(engine, gateway, projector, registry, nil, NewHub(nil), observability.NewHealthChecker(), nil)
	return srv, engine, projector
}

func do(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestDepositAndBalances(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, "POST", "/api/v1/deposits", map[string]interface{}{
		"asset":  asset.Native,
		"user":   testutil.Alice,
		"amount": 100,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("deposit status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, srv, "GET", "/api/v1/balances/"+testutil.Alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balances status = %d", rec.Code)
	}

	var resp struct {
		Balances []struct {
			Asset   asset.ID `json:"asset"`
			Balance uint64   `json:"balance"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	found := false
	for _, b := range resp.Balances {
		if b.Asset == asset.Native {
			found = true
			if b.Balance != 100 {
				t.Fatalf("native balance = %d, want 100", b.Balance)
			}
		}
	}
	if !found {
		t.Fatal("native asset missing from balances")
	}
}

func TestEngineErrorMapping(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// Cancel of an unknown order maps to 404.
	rec := do(t, srv, "POST", "/api/v1/orders/99/cancel", map[string]string{"user": testutil.Alice})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown status = %d, want 404", rec.Code)
	}

	// Zero-amount deposit maps to 400.
	rec = do(t, srv, "POST", "/api/v1/deposits", map[string]interface{}{
		"asset": asset.Native, "user": testutil.Alice, "amount": 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero deposit status = %d, want 400", rec.Code)
	}

	// Withdraw beyond balance maps to 422.
	rec = do(t, srv, "POST", "/api/v1/withdrawals", map[string]interface{}{
		"asset": asset.Native, "user": testutil.Alice, "amount": 1,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("over-withdraw status = %d, want 422", rec.Code)
	}
}

func TestCancelByNonOwnerForbidden(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, "POST", "/api/v1/orders", map[string]interface{}{
		"user":        testutil.Alice,
		"token_get":   testutil.Token,
		"amount_get":  100,
		"token_give":  asset.Native,
		"amount_give": 100,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("make order status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, srv, "POST", "/api/v1/orders/1/cancel", map[string]string{"user": testutil.Bob})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign cancel status = %d, want 403", rec.Code)
	}
}

func TestPendingFlagsClearAfterRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	do(t, srv, "POST", "/api/v1/deposits", map[string]interface{}{
		"asset": asset.Native, "user": testutil.Alice, "amount": 10,
	})

	rec := do(t, srv, "GET", "/api/v1/pending", nil)
	var pending client.PendingState
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pending.Depositing || pending.OrderMaking {
		t.Fatalf("flags stuck: %+v", pending)
	}
}

func TestTradeArchiveUnavailableWithoutPostgres(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, "GET", "/api/v1/trades/history", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestOrderBookServesProjectedViews(t *testing.T) {
	srv, engine, projector := newTestServer(t)

	env, err := engine.MakeOrder(testutil.Alice, testutil.Token, 100, asset.Native, 100)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	if err := projector.Apply(env); err != nil {
		t.Fatalf("project: %v", err)
	}

	rec := do(t, srv, "GET", "/api/v1/orderbook", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("orderbook status = %d", rec.Code)
	}

	var book views.OrderBook
	if err := json.Unmarshal(rec.Body.Bytes(), &book); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(book.Buys) != 1 || book.Buys[0].ID != 1 {
		t.Fatalf("book = %+v, want one buy order id 1", book)
	}
}
