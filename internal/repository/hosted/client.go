// Package hosted implements repository.Store against a hosted Postgres that
// is exposed through a PostgREST gateway (the Supabase "rest/v1" API).
//
// HOW POSTGREST MAPS TO SQL:
//
//	GET    /users?email=eq.a@x.com          → SELECT ... WHERE email = 'a@x.com'
//	POST   /users                           → INSERT
//	PATCH  /users?id=eq.7                   → UPDATE ... WHERE id = 7
//	Prefer: return=representation           → RETURNING *
//	Prefer: resolution=ignore-duplicates    → ON CONFLICT DO NOTHING
//
// Every request carries the project's anon key twice: as the "apikey"
// header (gateway routing) and as a bearer token (row-level security role).
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every call to the gateway.
const DefaultTimeout = 10 * time.Second

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("hosted: %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Config holds the gateway coordinates.
type Config struct {
	URL     string // project URL, e.g. https://abc.supabase.co
	APIKey  string
	Timeout time.Duration
}

// Client is a minimal PostgREST client plus the Store methods.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// New validates cfg and builds a Client. No request is made.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("hosted: URL and API key are required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("hosted: invalid URL %q: %w", cfg.URL, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// request describes one gateway call.
type request struct {
	method string
	table  string
	query  url.Values
	body   any
	prefer []string
}

// do executes req and decodes the JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	u := c.baseURL + "/" + req.table
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("hosted: encoding %s body: %w", req.table, err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("hosted: building request: %w", err)
	}
	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if len(req.prefer) > 0 {
		httpReq.Header.Set("Prefer", strings.Join(req.prefer, ","))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("hosted: %s %s: %w", req.method, req.table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &HTTPError{Method: req.method, Path: req.table, Status: resp.StatusCode, Body: string(msg)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hosted: decoding %s response: %w", req.table, err)
	}
	return nil
}

// Ping issues the cheapest possible read to prove the gateway and key work.
func (c *Client) Ping(ctx context.Context) error {
	var rows []struct {
		ID int64 `json:"id"`
	}
	return c.do(ctx, request{
		method: http.MethodGet,
		table:  "users",
		query:  url.Values{"select": {"id"}, "limit": {"1"}},
	}, &rows)
}

// Close releases idle keep-alive connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// eq and friends build PostgREST filter values.
func eq(v any) string  { return fmt.Sprintf("eq.%v", v) }
func neq(v any) string { return fmt.Sprintf("neq.%v", v) }
