// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the resilient request pipeline against the Tide
// service: credential attachment, timeouts, transient-failure retries with
// backoff, and one coordinated renew-and-retry on credential expiry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jeranaias/tidechat-cli/internal/auth"
)

// Configuration constants for the Tide API.
const (
	// DefaultTimeout is the default per-request timeout budget.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the transient-failure retry budget.
	// 1 initial attempt + 3 retries = 4 attempts total.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base for linear backoff: delay before retry k
	// is retryBaseDelay * k, so inter-attempt delays strictly increase.
	retryBaseDelay = 1 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// userAgent identifies the client on the wire.
const userAgent = "tidechat/0.1.0"

// sharedTransport pools connections across all clients.
// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// =============================================================================
// CLIENT
// =============================================================================

// Client performs authenticated request/response calls against the Tide
// service. All plain CRUD operations go through Do; the chat channel is
// handled separately by the chat package.
type Client struct {
	baseURL    string
	httpClient *http.Client
	guard      *auth.Guard
	limiter    *rate.Limiter

	maxRetries int
	timeout    time.Duration
	retryBase  time.Duration

	log zerolog.Logger
}

// NewClient creates a client for the given base URL. The guard supplies
// and renews the bearer credential attached to every request.
func NewClient(baseURL string, guard *auth.Guard, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: sharedTransport,
			// Per-request deadlines come from the context; the client
			// itself stays unbounded.
		},
		guard:      guard,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		retryBase:  retryBaseDelay,
		log:        log,
	}
}

// WithTimeout sets the default per-request timeout budget.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// WithMaxRetries sets the transient-failure retry budget.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// WithRetryBaseDelay sets the linear backoff base delay.
func (c *Client) WithRetryBaseDelay(d time.Duration) *Client {
	c.retryBase = d
	return c
}

// WithRateLimit enables a client-side limiter so bursts of CRUD calls
// don't hammer the service. Zero rps disables limiting.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the configured service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Guard returns the credential guard backing this client.
func (c *Client) Guard() *auth.Guard {
	return c.guard
}

// =============================================================================
// REQUEST OPTIONS
// =============================================================================

type requestOptions struct {
	timeout time.Duration
	retry   bool
	noAuth  bool
}

// RequestOption tunes a single Do call.
type RequestOption func(*requestOptions)

// WithRequestTimeout overrides the timeout budget for one request.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// WithoutRetry disables transient-failure retries for one request.
func WithoutRetry() RequestOption {
	return func(o *requestOptions) { o.retry = false }
}

// withoutAuth skips credential attachment (login and refresh only).
func withoutAuth() RequestOption {
	return func(o *requestOptions) { o.noAuth = true }
}

// =============================================================================
// REQUEST PIPELINE
// =============================================================================

// Do performs one logical request: attach credential, apply the timeout
// budget, classify the outcome, renew-and-retry once on server-reported
// credential expiry, and retry transient failures with linear backoff.
//
// body (if non-nil) is JSON-encoded; a 2xx response body is decoded into
// out (if non-nil). The returned error is always either nil or a
// classified *Error, never a raw transport error.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) error {
	ro := requestOptions{timeout: c.timeout, retry: true}
	for _, opt := range opts {
		opt(&ro)
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUnknown, Message: fmt.Sprintf("failed to encode request body: %v", err), cause: err}
		}
	}

	requestID := uuid.NewString()

	// The renewal path is bounded separately from the transient budget:
	// at most ONE coordinated renew-and-retry per logical request. A
	// second server-reported expiry after a renewal the guard believes
	// succeeded (server-side revocation) surfaces as terminal.
	authRetried := false
	retries := 0

	for {
		err := c.attempt(ctx, method, path, bodyBytes, out, ro, requestID)
		if err == nil {
			return nil
		}

		var apiErr *Error
		if !errors.As(err, &apiErr) {
			// Should not happen; keep the guarantee anyway.
			apiErr = &Error{Kind: KindUnknown, Message: err.Error(), cause: err}
		}

		if apiErr.Kind == KindAuthExpired && apiErr.Status != 0 && apiErr.Code == codeAuthExpired {
			// Server-declared expiry (not a locally-expired credential, and
			// not some other 401: a rejected key is not fixed by renewing).
			if authRetried || ro.noAuth {
				return apiErr
			}
			authRetried = true
			c.log.Debug().Str("request_id", requestID).Msg("credential expired server-side, renewing")
			if _, rerr := c.guard.ForceRenew(ctx); rerr != nil {
				return &Error{
					Kind:    KindAuthExpired,
					Message: "credential renewal failed",
					cause:   rerr,
				}
			}
			continue // immediate retry with the fresh credential
		}

		if ro.retry && apiErr.Retryable && retries < c.maxRetries {
			retries++
			delay := c.retryBase * time.Duration(retries)
			c.log.Debug().
				Str("request_id", requestID).
				Int("retry", retries).
				Dur("backoff", delay).
				Str("kind", string(apiErr.Kind)).
				Msg("transient failure, backing off")
			select {
			case <-ctx.Done():
				return classifyTransport(ctx.Err())
			case <-time.After(delay):
			}
			continue
		}

		return apiErr
	}
}

// attempt performs a single HTTP round trip with its own timeout-scoped
// cancellation handle, released whether the request succeeds, fails, or
// times out.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out interface{}, ro requestOptions, requestID string) error {
	var token string
	if !ro.noAuth {
		var err error
		token, err = c.guard.Token(ctx)
		if err != nil {
			return &Error{Kind: KindAuthExpired, Message: "no valid credential", cause: err}
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return classifyTransport(err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, ro.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("failed to create request: %v", err), cause: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A deadline fired on the request context is this attempt's
		// timeout, not the caller's cancellation.
		if reqCtx.Err() != nil && ctx.Err() == nil {
			return classifyTransport(context.DeadlineExceeded)
		}
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := readLimited(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error(), cause: err}
	}

	c.log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyResponse(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Kind: KindUnknown, Message: fmt.Sprintf("failed to decode response: %v", err), cause: err}
		}
	}
	return nil
}

// readLimited reads a response body with the size cap applied.
func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
