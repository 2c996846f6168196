// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runtime.go - Shared setup for commands that talk to the Tide service.
package cli

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeranaias/tidechat-cli/internal/api"
	"github.com/jeranaias/tidechat-cli/internal/auth"
	"github.com/jeranaias/tidechat-cli/internal/chat"
	"github.com/jeranaias/tidechat-cli/internal/config"
)

// appRuntime bundles the wired client stack for one command invocation.
type appRuntime struct {
	cfg     *config.Config
	log     zerolog.Logger
	guard   *auth.Guard
	client  *api.Client
	session *chat.Session
	manager *chat.Manager
}

// newLogger builds the stderr logger. Verbose wins over the configured
// level; quiet silences everything below errors.
func newLogger(args Args, cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err == nil {
		level = parsed
	}
	if args.Verbose {
		level = zerolog.DebugLevel
	}
	if args.Quiet {
		level = zerolog.ErrorLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// newRuntime wires config, credential guard, request client, and the
// streaming session together. The guard's renewal routes through the
// refresh endpoint and persists the fresh credential on success; a
// failed renewal discards the stored credential so the next run prompts
// for login instead of retrying a dead token.
func newRuntime(args Args) (*appRuntime, error) {
	cfg := config.Global()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := newLogger(args, cfg)

	var client *api.Client
	guard := auth.NewGuard(func(ctx context.Context, current auth.Credential) (auth.Credential, error) {
		fresh, err := client.Refresh(ctx, current)
		if err != nil {
			return auth.Credential{}, err
		}
		if serr := auth.SaveCredential(fresh); serr != nil {
			log.Warn().Err(serr).Msg("failed to persist renewed credential")
		}
		return fresh, nil
	}, log)
	guard.OnReauthRequired(func() {
		auth.ClearCredential()
	})

	client = api.NewClient(cfg.Server.URL, guard, log).
		WithTimeout(cfg.RequestTimeout()).
		WithMaxRetries(cfg.Request.MaxRetries).
		WithRetryBaseDelay(cfg.RetryBaseDelay()).
		WithRateLimit(cfg.Request.RateLimitPerSec, cfg.Request.RateLimitBurst)

	if cred, err := auth.LoadCredential(); err == nil {
		guard.SetCredential(cred)
	}

	session := chat.NewSession(cfg.WebSocketURL(), guard, log)

	return &appRuntime{
		cfg:     cfg,
		log:     log,
		guard:   guard,
		client:  client,
		session: session,
		manager: chat.NewManager(client, session, log),
	}, nil
}

// requireCredential fails fast with a login hint when no credential is
// stored, instead of letting the first request bounce off the server.
func (r *appRuntime) requireCredential() error {
	if r.guard.Credential().IsZero() {
		return auth.ErrNoCredential
	}
	return nil
}
