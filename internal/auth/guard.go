// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the bearer credential used for all outbound requests.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// LowWaterMark is the remaining credential lifetime below which a renewal
// is triggered before the credential is handed out.
const LowWaterMark = 5 * time.Minute

// ErrReauthRequired indicates renewal failed and the user must log in
// again. It is fatal and never retried by the request pipeline.
var ErrReauthRequired = errors.New("re-authentication required")

// ErrNoCredential indicates the guard holds no credential at all.
var ErrNoCredential = errors.New("not authenticated")

// =============================================================================
// CREDENTIAL
// =============================================================================

// Credential is the bearer token plus its expiry instant. It is owned
// exclusively by the Guard; everything else reads copies.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsZero reports whether no credential is held.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// Expiring reports whether the remaining lifetime is below the low-water
// mark (or already past).
func (c Credential) Expiring(lowWater time.Duration) bool {
	return time.Until(c.ExpiresAt) < lowWater
}

// Fingerprint returns a short SHA-256 fingerprint of the token for logging.
// SECURITY: Tokens are never logged; only the fingerprint is.
func (c Credential) Fingerprint() string {
	if c.Token == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.Token))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// GUARD
// =============================================================================

// RenewFunc exchanges the current credential for a fresh one.
type RenewFunc func(ctx context.Context, current Credential) (Credential, error)

// Guard holds the current credential and serializes concurrent renewal
// attempts into a single in-flight renewal: every caller that observes an
// expiring credential awaits the same renewal instead of starting another.
type Guard struct {
	mu       sync.RWMutex
	cred     Credential
	lowWater time.Duration

	renew RenewFunc
	sf    singleflight.Group
	log   zerolog.Logger

	// onReauth is invoked once per failed renewal so the consumer can
	// redirect to a fresh login. May be nil.
	onReauth func()
}

// NewGuard creates a guard around the given renewal function.
func NewGuard(renew RenewFunc, log zerolog.Logger) *Guard {
	return &Guard{
		lowWater: LowWaterMark,
		renew:    renew,
		log:      log,
	}
}

// WithLowWaterMark overrides the proactive renewal threshold.
func (g *Guard) WithLowWaterMark(d time.Duration) *Guard {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lowWater = d
	return g
}

// OnReauthRequired registers a callback fired when a renewal fails and the
// held credential is invalidated.
func (g *Guard) OnReauthRequired(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onReauth = fn
}

// SetCredential installs a credential obtained out of band (login, or the
// on-disk cache).
func (g *Guard) SetCredential(c Credential) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cred = c
}

// Credential returns a copy of the held credential.
func (g *Guard) Credential() Credential {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cred
}

// Token returns a credential token that is good for at least the low-water
// mark, renewing first if necessary. Callers arriving during an in-flight
// renewal await that same renewal.
func (g *Guard) Token(ctx context.Context) (string, error) {
	g.mu.RLock()
	cred := g.cred
	lowWater := g.lowWater
	g.mu.RUnlock()

	if cred.IsZero() {
		return "", ErrNoCredential
	}
	if !cred.Expiring(lowWater) {
		return cred.Token, nil
	}
	return g.renewShared(ctx)
}

// ForceRenew discards trust in the held credential and renews immediately.
// Used when the server reports the token expired even though it looked
// fresh locally. Concurrent forced renewals still coalesce into one call.
func (g *Guard) ForceRenew(ctx context.Context) (string, error) {
	return g.renewShared(ctx)
}

// renewShared funnels every renewal through a single in-flight operation.
// The singleflight entry is dropped when the renewal settles, success or
// failure, so the next expiry starts a fresh one.
func (g *Guard) renewShared(ctx context.Context) (string, error) {
	v, err, shared := g.sf.Do("renew", func() (interface{}, error) {
		g.mu.RLock()
		current := g.cred
		g.mu.RUnlock()

		fresh, err := g.renew(ctx, current)
		if err != nil {
			// A stale credential must never be returned: invalidate and
			// force a full re-authentication.
			g.mu.Lock()
			g.cred = Credential{}
			onReauth := g.onReauth
			g.mu.Unlock()

			g.log.Warn().Err(err).Msg("credential renewal failed, re-authentication required")
			if onReauth != nil {
				onReauth()
			}
			return nil, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}

		g.mu.Lock()
		g.cred = fresh
		g.mu.Unlock()

		g.log.Debug().
			Str("fingerprint", fresh.Fingerprint()).
			Time("expires_at", fresh.ExpiresAt).
			Msg("credential renewed")
		return fresh.Token, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		g.log.Debug().Msg("renewal shared with concurrent caller")
	}
	return v.(string), nil
}
