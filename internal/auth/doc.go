// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the bearer credential used to authenticate against the
// Tide service.
//
// # Credential Guard
//
// Guard hands out tokens and renews them proactively: when the remaining
// lifetime drops below the 5-minute low-water mark the next caller
// triggers a renewal, and every concurrent caller awaits that same
// renewal. At most one renewal is ever in flight process-wide.
//
//	guard := auth.NewGuard(renewFn, logger)
//	guard.SetCredential(cred)
//	token, err := guard.Token(ctx)
//
// On renewal failure the held credential is invalidated and callers get
// ErrReauthRequired; the guard never returns a stale token.
//
// # Credential Cache
//
// LoadCredential/SaveCredential keep the token in a 0600 JSON file under
// the config directory so the CLI stays logged in between runs.
package auth
