// Package remote is the typed client for the café REST API. Every method maps one endpoint and
// classifies its failures with package failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cafe/pkg/catalog"
	"cafe/pkg/checkout"
	"cafe/pkg/failure"
	"cafe/pkg/gallery"
	"cafe/pkg/orders"
	"cafe/pkg/session"
)

// IdempotencyHeader carries the per-attempt key on order creation.
const IdempotencyHeader = "Idempotency-Key"

const maxErrorBody = 64 << 10

var (
	_ catalog.Remote  = (*Client)(nil)
	_ orders.Remote   = (*Client)(nil)
	_ checkout.Remote = (*Client)(nil)
	_ session.Remote  = (*Client)(nil)
	_ gallery.Remote  = (*Client)(nil)
)

// TokenSource supplies the bearer token; an empty token sends no Authorization header.
type TokenSource interface {
	Load(ctx context.Context) (string, error)
}

// Client talks to one API base URL, which already includes the /api prefix.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	metrics    *Metrics
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithTokenSource sets where the bearer token is read from before each request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRateLimit throttles outgoing requests; rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records every request on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With(slog.String("component", "remote"))
	return c
}

// errorBody is the error envelope the API uses. detail is a string for business errors and a list
// for request validation errors.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

func (e errorBody) message() string {
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	return ""
}

type request struct {
	op      string
	method  string
	path    string
	body    any
	headers map[string]string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	start := time.Now()
	status, err := c.roundTrip(ctx, r, out)
	elapsed := time.Since(start)

	outcome := "ok"
	switch failure.KindOf(err) {
	case failure.KindRejection:
		outcome = "rejected"
	case failure.KindTransport:
		outcome = "transport"
	case failure.KindUnknown:
		if err != nil {
			outcome = "error"
		}
	}
	c.metrics.observe(r.op, outcome, elapsed)
	c.logger.Debug("remote call",
		slog.String("op", r.op),
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.Int("status", status),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed))
	return err
}

func (c *Client) roundTrip(ctx context.Context, r request, out any) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, failure.Transport(err)
		}
	}

	var reader io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return 0, fmt.Errorf("encode %s body: %w", r.op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if c.tokens != nil {
		token, err := c.tokens.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("load token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, failure.Transport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err := json.Unmarshal(data, &body); err != nil {
			return resp.StatusCode, failure.Rejection(resp.StatusCode, "")
		}
		return resp.StatusCode, failure.Rejection(resp.StatusCode, body.message())
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, failure.Transport(fmt.Errorf("decode %s response: %w", r.op, err))
	}
	return resp.StatusCode, nil
}
