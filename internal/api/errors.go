// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Kind is the closed set of error classifications surfaced to callers.
// Every failure leaving this package carries exactly one of these; raw
// transport errors never escape the pipeline boundary.
type Kind string

const (
	// KindTimeout: the request exceeded its timeout budget.
	KindTimeout Kind = "TIMEOUT"
	// KindNetwork: transport-level failure before any response arrived.
	KindNetwork Kind = "NETWORK_ERROR"
	// KindAuthExpired: server-declared credential expiry. Recovered once
	// via a coordinated renewal; terminal if it repeats.
	KindAuthExpired Kind = "AUTH_EXPIRED"
	// KindRateLimited: HTTP 429. Retried with backoff up to the budget.
	KindRateLimited Kind = "RATE_LIMITED"
	// KindServer: HTTP 5xx. Retried with backoff up to the budget.
	KindServer Kind = "SERVER_ERROR"
	// KindValidation: 4xx other than 401/429. Never retried.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindChannel: streaming-channel failure, terminal for that channel.
	KindChannel Kind = "CHANNEL_ERROR"
	// KindUnknown: fallback wrapper for anything unclassified.
	KindUnknown Kind = "UNKNOWN_ERROR"
)

// Error is a classified request failure.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Status    int
	Retryable bool

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Status != 0:
		return fmt.Sprintf("tide error %s [%s] (HTTP %d): %s", e.Kind, e.Code, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("tide error %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	default:
		return fmt.Sprintf("tide error %s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the classification from an error, or KindUnknown for
// anything that is not a classified *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// =============================================================================
// ERROR ENVELOPE
// =============================================================================

// errorEnvelope is the error response body shape of the Tide service.
type errorEnvelope struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Retryable *bool     `json:"retryable,omitempty"`
}

// codeAuthExpired is the envelope code the server uses to declare the
// bearer token expired.
const codeAuthExpired = "AUTH_EXPIRED"

// =============================================================================
// CLASSIFICATION
// =============================================================================

// classifyResponse converts a non-2xx response into a classified error.
func classifyResponse(statusCode int, body []byte) *Error {
	var env errorEnvelope
	message := http.StatusText(statusCode)
	code := ""
	var retryHint *bool
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		message = env.Error
		code = env.Code
		retryHint = env.Retryable
	}

	e := &Error{
		Code:    code,
		Message: message,
		Status:  statusCode,
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		// The envelope code is preserved as-is: only an explicit
		// AUTH_EXPIRED code gets the renewal path upstream, any other 401
		// means the credential itself is no good.
		e.Kind = KindAuthExpired
	case statusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.Retryable = true
	case statusCode >= 500:
		e.Kind = KindServer
		e.Retryable = true
	case statusCode >= 400:
		e.Kind = KindValidation
	default:
		e.Kind = KindUnknown
	}

	// The envelope may explicitly mark a failure non-retryable.
	if retryHint != nil && !*retryHint {
		e.Retryable = false
	}
	return e
}

// classifyTransport converts a transport-level failure into a classified
// error. The cause is preserved so errors.Is still sees context errors.
//
// Transport failures are never marked retryable: automatic backoff is
// reserved for rate-limit and server-class responses, so a request that
// burns its whole timeout budget is surfaced once instead of multiplying
// the budget by the retry count. The caller decides whether to try again.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:    KindTimeout,
			Message: "request exceeded its timeout budget",
			cause:   err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{
			Kind:    KindNetwork,
			Message: "request canceled",
			cause:   err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{
			Kind:    KindTimeout,
			Message: "request timed out",
			cause:   err,
		}
	}
	return &Error{
		Kind:    KindNetwork,
		Message: err.Error(),
		cause:   err,
	}
}
