// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCredential() Credential {
	return Credential{Token: "tok-valid", ExpiresAt: time.Now().Add(time.Hour)}
}

func expiringCredential() Credential {
	return Credential{Token: "tok-stale", ExpiresAt: time.Now().Add(time.Minute)}
}

func TestTokenReturnsHeldCredential(t *testing.T) {
	var calls atomic.Int64
	g := NewGuard(func(ctx context.Context, current Credential) (Credential, error) {
		calls.Add(1)
		return validCredential(), nil
	}, zerolog.Nop())
	g.SetCredential(validCredential())

	token, err := g.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-valid", token)
	assert.Equal(t, int64(0), calls.Load(), "fresh credential must not trigger renewal")
}

func TestTokenWithoutCredential(t *testing.T) {
	g := NewGuard(nil, zerolog.Nop())

	_, err := g.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestTokenRenewsExpiringCredential(t *testing.T) {
	var calls atomic.Int64
	g := NewGuard(func(ctx context.Context, current Credential) (Credential, error) {
		calls.Add(1)
		assert.Equal(t, "tok-stale", current.Token, "renewal must see the expiring credential")
		return Credential{Token: "tok-fresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}, zerolog.Nop())
	g.SetCredential(expiringCredential())

	token, err := g.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", token)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, "tok-fresh", g.Credential().Token, "fresh credential must be retained")
}

func TestConcurrentRenewalsCoalesce(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	g := NewGuard(func(ctx context.Context, current Credential) (Credential, error) {
		calls.Add(1)
		<-release
		return Credential{Token: "tok-fresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}, zerolog.Nop())
	g.SetCredential(expiringCredential())

	const workers = 16
	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = g.Token(context.Background())
		}(i)
	}

	// Let every worker pile onto the in-flight renewal before it settles.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent callers must share one renewal")
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-fresh", tokens[i])
	}
}

func TestRenewalFailureInvalidatesCredential(t *testing.T) {
	renewErr := errors.New("refresh endpoint down")
	reauthFired := false
	g := NewGuard(func(ctx context.Context, current Credential) (Credential, error) {
		return Credential{}, renewErr
	}, zerolog.Nop())
	g.OnReauthRequired(func() { reauthFired = true })
	g.SetCredential(expiringCredential())

	_, err := g.Token(context.Background())
	assert.ErrorIs(t, err, ErrReauthRequired)
	assert.True(t, reauthFired, "failed renewal must fire the reauth callback")
	assert.True(t, g.Credential().IsZero(), "failed renewal must not leave a stale credential behind")
}

func TestRenewalFailureIsNotSticky(t *testing.T) {
	var calls atomic.Int64
	g := NewGuard(func(ctx context.Context, current Credential) (Credential, error) {
		if calls.Add(1) == 1 {
			return Credential{}, errors.New("transient")
		}
		return validCredential(), nil
	}, zerolog.Nop())
	g.SetCredential(expiringCredential())

	_, err := g.Token(context.Background())
	require.ErrorIs(t, err, ErrReauthRequired)

	// After a fresh login the guard renews normally again.
	g.SetCredential(expiringCredential())
	token, err := g.ForceRenew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-valid", token)
	assert.Equal(t, int64(2), calls.Load())
}

func TestForceRenewBypassesFreshness(t *testing.T) {
	var calls atomic.Int64
	g := NewGuard(func(ctx context.Context, current Credential) (Credential, error) {
		calls.Add(1)
		return Credential{Token: "tok-forced", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}, zerolog.Nop())
	g.SetCredential(validCredential())

	token, err := g.ForceRenew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-forced", token)
	assert.Equal(t, int64(1), calls.Load(), "forced renewal must run even for a locally-fresh credential")
}

func TestFingerprintNeverExposesToken(t *testing.T) {
	cred := Credential{Token: "super-secret-token", ExpiresAt: time.Now()}
	fp := cred.Fingerprint()
	assert.Len(t, fp, 8)
	assert.NotContains(t, fp, "secret")

	assert.Equal(t, "none", Credential{}.Fingerprint())
}
