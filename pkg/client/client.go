package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tinikov/stockapi/internal/digest"
)

var (
	// ErrRejected is returned when the server answers 400: invalid payload,
	// unknown good or insufficient stock.
	ErrRejected = errors.New("request rejected")

	// ErrUnauthorized is returned when the digest handshake did not succeed.
	ErrUnauthorized = errors.New("unauthorized")
)

// Sale is the payload for Sell. Zero Amount and Price are omitted and take
// the server defaults (1 and 0).
type Sale struct {
	Name   string  `json:"name"`
	Amount int     `json:"amount,omitempty"`
	Price  float64 `json:"price,omitempty"`
}

type stockRequest struct {
	Name   string `json:"name"`
	Amount int    `json:"amount,omitempty"`
}

// Client talks to one stock API server.
type Client struct {
	base       string
	httpClient *http.Client
	username   string
	secret     string

	// last challenge seen, guarded by mu
	mu    sync.Mutex
	realm string
	nonce string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// WithCredentials enables the digest handshake for protected routes.
func WithCredentials(username, secret string) Option {
	return func(c *Client) error {
		if username == "" {
			return errors.New("username must not be empty")
		}
		c.username = username
		c.secret = secret
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8000".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// AddStock adds amount units of name. amount 0 adds the server default of 1.
func (c *Client) AddStock(ctx context.Context, name string, amount int) error {
	body, err := json.Marshal(stockRequest{Name: name, Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal stock: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/v1/stocks", body)
	return err
}

// Stock returns the amount held of name; unknown goods report 0.
func (c *Client) Stock(ctx context.Context, name string) (int, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/stocks/"+url.PathEscape(name), nil)
	if err != nil {
		return 0, err
	}
	var out map[string]int
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode stock: %w", err)
	}
	return out[name], nil
}

// Stocks returns every good with a non-zero amount.
func (c *Client) Stocks(ctx context.Context) (map[string]int, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/stocks", nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode stocks: %w", err)
	}
	return out, nil
}

// ClearStocks deletes every good. The sales total is kept.
func (c *Client) ClearStocks(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/stocks", nil)
	return err
}

// Sell records a sale.
func (c *Client) Sell(ctx context.Context, s Sale) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sale: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/v1/sales", body)
	return err
}

// Sales returns the cumulative sales value, rounded to cents by the server.
func (c *Client) Sales(ctx context.Context) (float64, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/sales", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Sales float64 `json:"sales"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode sales: %w", err)
	}
	return out.Sales, nil
}

// Secret fetches the digest-protected /secret resource.
func (c *Client) Secret(ctx context.Context) (string, error) {
	raw, err := c.do(ctx, http.MethodGet, "/secret", nil)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// do sends one request, answering at most one digest challenge.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	status, hdr, raw, err := c.send(ctx, method, path, body, c.authorization(method, path))
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && c.username != "" {
		realm, nonce, perr := digest.ParseChallenge(hdr.Get("WWW-Authenticate"))
		if perr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, perr)
		}
		c.mu.Lock()
		c.realm, c.nonce = realm, nonce
		c.mu.Unlock()

		status, _, raw, err = c.send(ctx, method, path, body, c.authorization(method, path))
		if err != nil {
			return nil, err
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case status == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s %s", ErrRejected, method, path)
	case status >= 300:
		return nil, fmt.Errorf("server error %d: %s", status, string(raw))
	}
	return raw, nil
}

// authorization returns the digest header for the remembered challenge, or ""
// when there is none.
func (c *Client) authorization(method, path string) string {
	if c.username == "" {
		return ""
	}
	c.mu.Lock()
	realm, nonce := c.realm, c.nonce
	c.mu.Unlock()
	if nonce == "" {
		return ""
	}
	// The server hashes the decoded request path.
	if p, err := url.PathUnescape(path); err == nil {
		path = p
	}
	return digest.Answer(c.username, c.secret, realm, method, path, nonce)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, auth string) (int, http.Header, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, resp.Header, raw, nil
}
