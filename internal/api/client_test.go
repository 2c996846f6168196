// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/tidechat-cli/internal/auth"
)

// newTestGuard returns a guard holding a fresh credential whose renewal
// hands out renewed-N tokens and counts invocations.
func newTestGuard(renewals *atomic.Int64) *auth.Guard {
	g := auth.NewGuard(func(ctx context.Context, current auth.Credential) (auth.Credential, error) {
		renewals.Add(1)
		return auth.Credential{Token: "renewed", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}, zerolog.Nop())
	g.SetCredential(auth.Credential{Token: "initial", ExpiresAt: time.Now().Add(time.Hour)})
	return g
}

// newTestClient builds a client against the test server with a tiny
// backoff so retry tests stay fast.
func newTestClient(server *httptest.Server, guard *auth.Guard) *Client {
	return NewClient(server.URL, guard, zerolog.Nop()).
		WithRetryBaseDelay(5 * time.Millisecond)
}

func TestDoDecodesSuccessResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer initial" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"greeting":"hello"}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	var out struct {
		Greeting string `json:"greeting"`
	}
	if err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, &out); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if out.Greeting != "hello" {
		t.Errorf("Greeting = %q, want hello", out.Greeting)
	}
	if renewals.Load() != 0 {
		t.Errorf("renewals = %d, want 0", renewals.Load())
	}
}

func TestServerErrorsConsumeRetryBudget(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom","status":500}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil)
	if KindOf(err) != KindServer {
		t.Fatalf("kind = %v, want %v (err: %v)", KindOf(err), KindServer, err)
	}
	// 1 initial attempt + 3 retries.
	if attempts.Load() != 4 {
		t.Errorf("attempts = %d, want 4", attempts.Load())
	}
}

func TestBackoffDelaysIncrease(t *testing.T) {
	var times []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times = append(times, time.Now())
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"busy","status":503}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := NewClient(server.URL, newTestGuard(&renewals), zerolog.Nop()).
		WithRetryBaseDelay(20 * time.Millisecond)

	client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil)

	if len(times) != 4 {
		t.Fatalf("attempts = %d, want 4", len(times))
	}
	// Linear backoff: gaps of ~20ms, ~40ms, ~60ms. Scheduling jitter only
	// ever lengthens a gap, so ordering holds.
	gap1 := times[1].Sub(times[0])
	gap3 := times[3].Sub(times[2])
	if gap1 < 20*time.Millisecond {
		t.Errorf("first gap %v shorter than base delay", gap1)
	}
	if gap3 < 60*time.Millisecond {
		t.Errorf("third gap %v shorter than 3x base delay", gap3)
	}
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"title is required","code":"MISSING_TITLE","status":400}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	err := client.Do(context.Background(), http.MethodPost, "/api/test", nil, nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want %v", KindOf(err), KindValidation)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (validation failures are permanent)", attempts.Load())
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatal("expected *Error")
	}
	if apiErr.Code != "MISSING_TITLE" {
		t.Errorf("Code = %q, want MISSING_TITLE", apiErr.Code)
	}
}

func TestRetryableHintOverridesStatusClass(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"shutting down","status":503,"retryable":false}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil)
	if KindOf(err) != KindServer {
		t.Fatalf("kind = %v, want %v", KindOf(err), KindServer)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (server said not retryable)", attempts.Load())
	}
}

func TestAuthExpiredRenewsOnceAndRetries(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"token expired","code":"AUTH_EXPIRED","status":401}`))
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer renewed" {
			t.Errorf("retry Authorization = %q, want renewed token", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	if err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if renewals.Load() != 1 {
		t.Errorf("renewals = %d, want exactly 1", renewals.Load())
	}
}

func TestSecondAuthExpiredIsTerminal(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"token revoked","code":"AUTH_EXPIRED","status":401}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil)
	if KindOf(err) != KindAuthExpired {
		t.Fatalf("kind = %v, want %v", KindOf(err), KindAuthExpired)
	}
	// One renewal, one retry, then give up: the renewed credential being
	// rejected means server-side revocation, not expiry.
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if renewals.Load() != 1 {
		t.Errorf("renewals = %d, want 1", renewals.Load())
	}
}

func TestUnauthorizedWithoutExpiryCodeIsTerminal(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"api key rejected","code":"INVALID_KEY","status":401}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil)
	if KindOf(err) != KindAuthExpired {
		t.Fatalf("kind = %v, want %v", KindOf(err), KindAuthExpired)
	}
	// A rejected key is not fixed by renewing: only the explicit
	// AUTH_EXPIRED envelope code triggers the renewal path.
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
	if renewals.Load() != 0 {
		t.Errorf("renewals = %d, want 0", renewals.Load())
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatal("expected *Error")
	}
	if apiErr.Code != "INVALID_KEY" {
		t.Errorf("Code = %q, want the envelope code preserved", apiErr.Code)
	}
}

func TestMissingCredentialFailsFast(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer server.Close()

	guard := auth.NewGuard(nil, zerolog.Nop()) // holds nothing
	client := newTestClient(server, guard)

	err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil)
	if !errors.Is(err, auth.ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("attempts = %d, want 0 (no request without a credential)", attempts.Load())
	}
}

func TestPerRequestTimeoutIsNotRetried(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	start := time.Now()
	err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil,
		WithRequestTimeout(50*time.Millisecond))
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %v, want %v (err: %v)", KindOf(err), KindTimeout, err)
	}
	// The whole timeout budget was spent; burning it again 3 more times
	// would not help, so the failure surfaces after a single attempt.
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, budget was 50ms", elapsed)
	}
}

func TestCallerCancellationIsNotRetried(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		<-r.Context().Done()
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := client.Do(ctx, http.MethodGet, "/api/test", nil, nil)
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind = %v, want %v (err: %v)", KindOf(err), KindNetwork, err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (cancellation is permanent)", attempts.Load())
	}
}

func TestRateLimitedResponsesAreRetried(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"slow down","status":429}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var renewals atomic.Int64
	client := newTestClient(server, newTestGuard(&renewals))

	if err := client.Do(context.Background(), http.MethodGet, "/api/test", nil, nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}
