// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// login_cmd.go - Credential management commands for the tidechat CLI.
//
// Command: login
// Short:   Sign in and store a credential
//
// Command: logout
// Short:   Discard the stored credential
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/tidechat-cli/internal/auth"
)

// HandleLogin prompts for credentials, exchanges them for a token, and
// stores it with owner-only permissions.
func HandleLogin(args Args) error {
	if !IsTTY() {
		return fmt.Errorf("login requires an interactive terminal")
	}

	rt, err := newRuntime(args)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Sign in to Tide"))
	fmt.Printf("%s %s\n\n", labelStyle.Render("Server:"), rt.cfg.Server.URL)

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}

	// SECURITY: Password read with echo disabled, never logged.
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return fmt.Errorf("password is required")
	}

	cred, err := rt.client.Login(context.Background(), username, string(password))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := auth.SaveCredential(cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	fmt.Printf("\n%s Signed in as %s (credential valid until %s)\n",
		successStyle.Render("[OK]"),
		username,
		cred.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

// HandleLogout discards the stored credential. Idempotent.
func HandleLogout(args Args) error {
	if err := auth.ClearCredential(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	fmt.Printf("%s Signed out\n", successStyle.Render("[OK]"))
	return nil
}
