package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinikov/stockapi/internal/digest"
	"github.com/tinikov/stockapi/internal/handler"
	"github.com/tinikov/stockapi/internal/inventory"
	"github.com/tinikov/stockapi/pkg/client"
)

const (
	testUser   = "tinikov"
	testSecret = "SU(3)group"
)

// ── Test server ─────────────────────────────────────────────────────────

func newServer(t *testing.T, cfg handler.RouterConfig, tracker digest.NonceTracker) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	creds := digest.NewCredentialStore(map[string]string{testUser: testSecret})
	auth := digest.NewAuthenticator("tinikov-webserver", creds, zap.NewNop())
	if tracker != nil {
		auth.SetNonceTracker(tracker)
	}
	l := inventory.NewLedger(inventory.NewMemoryStore(), zap.NewNop())

	srv := httptest.NewServer(handler.NewRouter(l, auth, cfg, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_invalidURL(t *testing.T) {
	for _, base := range []string{"", "localhost:8000", "://x"} {
		if _, err := client.New(base); err == nil {
			t.Errorf("%q: expected error", base)
		}
	}
}

func TestNew_emptyUsername(t *testing.T) {
	if _, err := client.New("http://localhost", client.WithCredentials("", "x")); err == nil {
		t.Error("expected error")
	}
}

func TestStockAndSalesFlow(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t, handler.RouterConfig{}, nil)
	c := client.MustNew(srv.URL)

	if err := c.AddStock(ctx, "widget", 7); err != nil {
		t.Fatal(err)
	}
	if err := c.AddStock(ctx, "gadget", 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Sell(ctx, client.Sale{Name: "widget", Amount: 3, Price: 2.5}); err != nil {
		t.Fatal(err)
	}

	if n, err := c.Stock(ctx, "widget"); err != nil || n != 4 {
		t.Errorf("Stock: n=%d err=%v", n, err)
	}
	stocks, err := c.Stocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stocks) != 2 || stocks["widget"] != 4 || stocks["gadget"] != 1 {
		t.Errorf("Stocks: %v", stocks)
	}
	if v, err := c.Sales(ctx); err != nil || v != 7.5 {
		t.Errorf("Sales: v=%v err=%v", v, err)
	}

	if err := c.ClearStocks(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Stock(ctx, "widget"); n != 0 {
		t.Errorf("Stock after clear: %d", n)
	}
	if v, _ := c.Sales(ctx); v != 7.5 {
		t.Errorf("Sales after clear: %v", v)
	}
}

func TestSell_rejected(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t, handler.RouterConfig{}, nil)
	c := client.MustNew(srv.URL)

	if err := c.Sell(ctx, client.Sale{Name: "ghost"}); !errors.Is(err, client.ErrRejected) {
		t.Errorf("unknown good: expected ErrRejected, got %v", err)
	}
	_ = c.AddStock(ctx, "widget", 1)
	if err := c.Sell(ctx, client.Sale{Name: "widget", Amount: 2}); !errors.Is(err, client.ErrRejected) {
		t.Errorf("insufficient: expected ErrRejected, got %v", err)
	}
}

func TestSecret_handshake(t *testing.T) {
	srv := newServer(t, handler.RouterConfig{}, nil)
	c := client.MustNew(srv.URL, client.WithCredentials(testUser, testSecret))

	for i := 0; i < 2; i++ {
		got, err := c.Secret(context.Background())
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got != "SUCCESS" {
			t.Errorf("call %d: got %q", i, got)
		}
	}
}

func TestSecret_singleUseNonces(t *testing.T) {
	srv := newServer(t, handler.RouterConfig{}, digest.NewMemoryNonceTracker(time.Minute, 0))
	c := client.MustNew(srv.URL, client.WithCredentials(testUser, testSecret))

	// The second call presents a consumed nonce and must recover.
	for i := 0; i < 3; i++ {
		if _, err := c.Secret(context.Background()); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestSecret_unauthorized(t *testing.T) {
	srv := newServer(t, handler.RouterConfig{}, nil)

	anon := client.MustNew(srv.URL)
	if _, err := anon.Secret(context.Background()); !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("anonymous: expected ErrUnauthorized, got %v", err)
	}

	wrong := client.MustNew(srv.URL, client.WithCredentials(testUser, "guess"))
	if _, err := wrong.Secret(context.Background()); !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("wrong secret: expected ErrUnauthorized, got %v", err)
	}
}

func TestProtectedAPI(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t, handler.RouterConfig{ProtectAPI: true}, nil)
	c := client.MustNew(srv.URL, client.WithCredentials(testUser, testSecret))

	if err := c.AddStock(ctx, "blue widget", 2); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Stock(ctx, "blue widget"); err != nil || n != 2 {
		t.Errorf("Stock: n=%d err=%v", n, err)
	}
}

func TestServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"ERROR"}`))
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL)
	_, err := c.Sales(context.Background())
	if err == nil || errors.Is(err, client.ErrRejected) {
		t.Errorf("expected server error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls: %d", calls.Load())
	}
}
