package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinikov/stockapi/internal/digest"
	"github.com/tinikov/stockapi/internal/handler"
	"github.com/tinikov/stockapi/internal/health"
	"github.com/tinikov/stockapi/internal/inventory"
)

const (
	testRealm  = "tinikov-webserver"
	testUser   = "tinikov"
	testSecret = "SU(3)group"
)

func newAuthenticator() *digest.Authenticator {
	creds := digest.NewCredentialStore(map[string]string{testUser: testSecret})
	return digest.NewAuthenticator(testRealm, creds, zap.NewNop())
}

func setupRouter(t *testing.T, cfg handler.RouterConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	l := inventory.NewLedger(inventory.NewMemoryStore(), zap.NewNop())
	return handler.NewRouter(l, newAuthenticator(), cfg, zap.NewNop())
}

func do(router *gin.Engine, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestWelcome_200(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	w := do(router, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || w.Body.String() != "Welcome to my simple web server" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestHealthz_200(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	if w := do(router, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestSecret_401_challenge(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	w := do(router, http.MethodGet, "/secret", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if resp := decodeBody(t, w); resp["detail"] != "Unauthorized" {
		t.Errorf("body: %v", resp)
	}
	realm, nonce, err := digest.ParseChallenge(w.Header().Get("WWW-Authenticate"))
	if err != nil {
		t.Fatalf("challenge %q: %v", w.Header().Get("WWW-Authenticate"), err)
	}
	if realm != testRealm || len(nonce) != 32 {
		t.Errorf("realm=%q nonce=%q", realm, nonce)
	}
}

func TestSecret_200_withDigest(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	w := do(router, http.MethodGet, "/secret", "")
	_, nonce, _ := digest.ParseChallenge(w.Header().Get("WWW-Authenticate"))

	auth := digest.Answer(testUser, testSecret, testRealm, http.MethodGet, "/secret", nonce)
	w = do(router, http.MethodGet, "/secret", "", "Authorization", auth)
	if w.Code != http.StatusOK || w.Body.String() != "SUCCESS" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestSecret_401_wrongSecret(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	auth := digest.Answer(testUser, "guess", testRealm, http.MethodGet, "/secret", "abc")
	w := do(router, http.MethodGet, "/secret", "", "Authorization", auth)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing challenge header")
	}
}

func TestAddStock_201(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	w := do(router, http.MethodPost, "/v1/stocks", `{"name":"widget","amount":3}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/v1/stocks/widget" {
		t.Errorf("Location: %q", loc)
	}
	if w.Body.String() != `{"amount":3,"name":"widget"}` {
		t.Errorf("echo: %s", w.Body.String())
	}
}

func TestAddStock_locationEscapesName(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	w := do(router, http.MethodPost, "/v1/stocks", `{"name":"blue widget"}`)
	if loc := w.Header().Get("Location"); loc != "/v1/stocks/blue%20widget" {
		t.Errorf("Location: %q", loc)
	}
}

func TestAddStock_400(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	for _, body := range []string{
		`{"foo":"bar"}`,
		`{"name":"widget","amount":-1}`,
		`{"name":""}`,
		`not json`,
		`[]`,
	} {
		w := do(router, http.MethodPost, "/v1/stocks", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
			continue
		}
		if resp := decodeBody(t, w); resp["message"] != "ERROR" {
			t.Errorf("%s: body %v", body, resp)
		}
	}
}

func TestGetStock(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	do(router, http.MethodPost, "/v1/stocks", `{"name":"widget","amount":5}`)
	do(router, http.MethodPost, "/v1/stocks", `{"name":"widget","amount":2}`)

	if w := do(router, http.MethodGet, "/v1/stocks/widget", ""); w.Body.String() != `{"widget":7}` {
		t.Errorf("widget: %s", w.Body.String())
	}
	if w := do(router, http.MethodGet, "/v1/stocks/ghost", ""); w.Body.String() != `{"ghost":0}` {
		t.Errorf("ghost: %s", w.Body.String())
	}
}

func TestListStocks_sortedWithoutZero(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	do(router, http.MethodPost, "/v1/stocks", `{"name":"pear","amount":2}`)
	do(router, http.MethodPost, "/v1/stocks", `{"name":"apple"}`)
	do(router, http.MethodPost, "/v1/stocks", `{"name":"melon"}`)
	do(router, http.MethodPost, "/v1/sales", `{"name":"melon"}`)

	w := do(router, http.MethodGet, "/v1/stocks", "")
	if w.Body.String() != `{"apple":1,"pear":2}` {
		t.Errorf("listing: %s", w.Body.String())
	}
}

func TestSell_200(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	do(router, http.MethodPost, "/v1/stocks", `{"name":"widget","amount":7}`)

	w := do(router, http.MethodPost, "/v1/sales", `{"name":"widget","amount":3,"price":2.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/v1/sales/widget" {
		t.Errorf("Location: %q", loc)
	}
	if w.Body.String() != `{"amount":3,"name":"widget","price":2.5}` {
		t.Errorf("echo: %s", w.Body.String())
	}

	if w := do(router, http.MethodGet, "/v1/sales", ""); w.Body.String() != `{"sales":7.5}` {
		t.Errorf("sales: %s", w.Body.String())
	}
	if w := do(router, http.MethodGet, "/v1/stocks/widget", ""); w.Body.String() != `{"widget":4}` {
		t.Errorf("stock: %s", w.Body.String())
	}
}

func TestSell_400(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	do(router, http.MethodPost, "/v1/stocks", `{"name":"widget","amount":1}`)

	for _, body := range []string{
		`{"name":"ghost"}`,
		`{"name":"widget","amount":2}`,
		`{"name":"widget","price":-1}`,
		`{"name":"widget","colour":"red"}`,
	} {
		if w := do(router, http.MethodPost, "/v1/sales", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
	if w := do(router, http.MethodGet, "/v1/stocks/widget", ""); w.Body.String() != `{"widget":1}` {
		t.Errorf("stock changed: %s", w.Body.String())
	}
}

func TestSales_roundedToCents(t *testing.T) {
	tests := []struct {
		price string
		want  float64
	}{
		{"0.125", 0.12}, // exact tie goes to even
		{"0.375", 0.38},
		{"2.675", 2.67}, // binary value sits below the tie
		{"1.005", 1},
		{"7.5", 7.5},
	}
	for _, tc := range tests {
		router := setupRouter(t, handler.RouterConfig{})
		do(router, http.MethodPost, "/v1/stocks", `{"name":"widget"}`)
		do(router, http.MethodPost, "/v1/sales", `{"name":"widget","price":`+tc.price+`}`)

		resp := decodeBody(t, do(router, http.MethodGet, "/v1/sales", ""))
		if resp["sales"] != tc.want {
			t.Errorf("price %s: sales %v, want %v", tc.price, resp["sales"], tc.want)
		}
	}
}

func TestSell_overflowingValueKeepsTotalReadable(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	do(router, http.MethodPost, "/v1/stocks", `{"name":"widget","amount":5}`)

	w := do(router, http.MethodPost, "/v1/sales", `{"name":"widget","amount":2,"price":1e308}`)
	if w.Code != http.StatusBadRequest || w.Body.String() != `{"message":"ERROR"}` {
		t.Fatalf("overflowing sale: %d %s", w.Code, w.Body.String())
	}
	do(router, http.MethodPost, "/v1/sales", `{"name":"widget","price":2.5}`)

	w = do(router, http.MethodGet, "/v1/sales", "")
	if w.Code != http.StatusOK || w.Body.String() != `{"sales":2.5}` {
		t.Errorf("sales: %d %q", w.Code, w.Body.String())
	}
	if w := do(router, http.MethodGet, "/v1/stocks/widget", ""); w.Body.String() != `{"widget":4}` {
		t.Errorf("stock: %s", w.Body.String())
	}
}

func TestClearStock_keepsSales(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	do(router, http.MethodPost, "/v1/stocks", `{"name":"widget","amount":2}`)
	do(router, http.MethodPost, "/v1/sales", `{"name":"widget","price":3}`)

	w := do(router, http.MethodDelete, "/v1/stocks", "")
	if w.Code != http.StatusOK || w.Body.String() != `{"message":"Stock deleted"}` {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if w := do(router, http.MethodGet, "/v1/stocks/widget", ""); w.Body.String() != `{"widget":0}` {
		t.Errorf("stock: %s", w.Body.String())
	}
	if w := do(router, http.MethodGet, "/v1/sales", ""); w.Body.String() != `{"sales":3}` {
		t.Errorf("sales: %s", w.Body.String())
	}
}

// failingLedger fails every operation as a broken store would.
type failingLedger struct{}

var errStoreDown = errors.New("store down")

func (failingLedger) UpsertStock(context.Context, inventory.StockInput) (int, error) {
	return 0, errStoreDown
}
func (failingLedger) GetStock(context.Context, string) (int, error) { return 0, errStoreDown }
func (failingLedger) ListStock(context.Context) ([]inventory.StockLevel, error) {
	return nil, errStoreDown
}
func (failingLedger) ClearStock(context.Context) (int64, error) { return 0, errStoreDown }
func (failingLedger) Sell(context.Context, inventory.SaleInput) (*inventory.SaleResult, error) {
	return nil, errStoreDown
}
func (failingLedger) TotalSales(context.Context) (float64, error) { return 0, errStoreDown }

func TestStoreFailure_500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := handler.NewRouter(failingLedger{}, newAuthenticator(), handler.RouterConfig{}, zap.NewNop())

	cases := []struct{ method, path, body string }{
		{http.MethodPost, "/v1/stocks", `{"name":"widget"}`},
		{http.MethodGet, "/v1/stocks/widget", ""},
		{http.MethodGet, "/v1/stocks", ""},
		{http.MethodDelete, "/v1/stocks", ""},
		{http.MethodPost, "/v1/sales", `{"name":"widget"}`},
		{http.MethodGet, "/v1/sales", ""},
	}
	for _, c := range cases {
		w := do(router, c.method, c.path, c.body)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s %s: expected 500, got %d", c.method, c.path, w.Code)
			continue
		}
		if resp := decodeBody(t, w); resp["message"] != "ERROR" {
			t.Errorf("%s %s: body %v", c.method, c.path, resp)
		}
	}
}

func TestProtectAPI(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{ProtectAPI: true})
	w := do(router, http.MethodGet, "/v1/stocks", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	_, nonce, _ := digest.ParseChallenge(w.Header().Get("WWW-Authenticate"))

	auth := digest.Answer(testUser, testSecret, testRealm, http.MethodGet, "/v1/stocks", nonce)
	if w := do(router, http.MethodGet, "/v1/stocks", "", "Authorization", auth); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRateLimiter_429(t *testing.T) {
	rl := handler.NewIPRateLimiter(1, 1)
	router := setupRouter(t, handler.RouterConfig{RateLimiter: rl})

	if w := do(router, http.MethodGet, "/", ""); w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}
	w := do(router, http.MethodGet, "/", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Error("missing Retry-After")
	}
}

func TestRateLimiter_cleanup(t *testing.T) {
	rl := handler.NewIPRateLimiter(10, 10)
	router := setupRouter(t, handler.RouterConfig{RateLimiter: rl})
	do(router, http.MethodGet, "/", "")

	if n := rl.Cleanup(time.Hour); n != 0 {
		t.Errorf("fresh client dropped: %d", n)
	}
	time.Sleep(5 * time.Millisecond)
	if n := rl.Cleanup(time.Millisecond); n != 1 {
		t.Errorf("expected 1 dropped, got %d", n)
	}
}

func TestRequestID(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	w := do(router, http.MethodGet, "/", "")
	if w.Header().Get(handler.RequestIDHeader) == "" {
		t.Error("missing generated request ID")
	}

	const id = "6f1c7c3e-55a4-4b39-9d0f-6a3f2d1e8b7a"
	w = do(router, http.MethodGet, "/", "", handler.RequestIDHeader, id)
	if got := w.Header().Get(handler.RequestIDHeader); got != id {
		t.Errorf("request ID: got %q", got)
	}
}

func TestBodyLimit_400(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := inventory.NewLedger(inventory.NewMemoryStore(), zap.NewNop())
	router := handler.NewRouter(l, newAuthenticator(), handler.RouterConfig{BodyLimit: 16}, zap.NewNop())
	w := do(router, http.MethodPost, "/v1/stocks", `{"name":"a-rather-long-widget-name"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := setupRouter(t, handler.RouterConfig{})
	if w := do(router, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("no checker: expected 200, got %d", w.Code)
	}

	checker := health.New(health.Config{FailThreshold: 1}, zap.NewNop())
	checker.Register("postgres", func(context.Context) error { return errStoreDown })
	checker.CheckAll(context.Background())

	router = setupRouter(t, handler.RouterConfig{Health: checker})
	w := do(router, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	resp := decodeBody(t, w)
	checks, _ := resp["checks"].(map[string]any)
	if checks["postgres"] != "down" {
		t.Errorf("checks: %v", resp)
	}
}
