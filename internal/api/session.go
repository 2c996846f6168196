// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jeranaias/tidechat-cli/internal/auth"
)

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type credentialResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges a username/password for a bearer credential. No
// credential is attached to the request itself.
func (c *Client) Login(ctx context.Context, username, password string) (auth.Credential, error) {
	var resp credentialResponse
	err := c.Do(ctx, http.MethodPost, "/api/auth/login",
		loginRequest{Username: username, Password: password}, &resp,
		withoutAuth())
	if err != nil {
		return auth.Credential{}, err
	}
	return auth.Credential{Token: resp.Token, ExpiresAt: resp.ExpiresAt}, nil
}

// Refresh exchanges the current credential for a fresh one. The expiring
// token rides in the request body, so the call skips the guard entirely:
// the guard invokes Refresh from inside its own renewal, and routing it
// back through the guard would deadlock on the shared renewal flight.
func (c *Client) Refresh(ctx context.Context, current auth.Credential) (auth.Credential, error) {
	var resp credentialResponse
	err := c.Do(ctx, http.MethodPost, "/api/auth/refresh",
		refreshRequest{Token: current.Token}, &resp,
		withoutAuth())
	if err != nil {
		return auth.Credential{}, err
	}
	return auth.Credential{Token: resp.Token, ExpiresAt: resp.ExpiresAt}, nil
}
