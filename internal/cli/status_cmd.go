// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status_cmd.go - Connection and credential status for the tidechat CLI.
//
// Command: status
// Short:   Show connection and credential status
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/tidechat-cli/internal/auth"
)

// HandleStatus reports the configured server, credential state, and
// whether the server answers.
func HandleStatus(args Args) error {
	rt, err := newRuntime(args)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("tidechat status"))
	fmt.Println(renderSeparator(30))
	fmt.Printf("  %s %s\n", labelStyle.Render("Server:"), rt.cfg.Server.URL)
	fmt.Printf("  %s %s\n", labelStyle.Render("Channel URL:"), rt.cfg.WebSocketURL())

	cred := rt.guard.Credential()
	switch {
	case cred.IsZero():
		fmt.Printf("  %s %s\n", labelStyle.Render("Credential:"),
			errorStyle.Render("missing")+infoStyle.Render(" (run: tidechat login)"))
	case cred.Expiring(auth.LowWaterMark):
		fmt.Printf("  %s %s\n", labelStyle.Render("Credential:"),
			warningStyle.Render("expiring soon")+infoStyle.Render(" (renewed automatically on next request)"))
	default:
		fmt.Printf("  %s %s\n", labelStyle.Render("Credential:"),
			successStyle.Render(fmt.Sprintf("valid (%s remaining)",
				time.Until(cred.ExpiresAt).Round(time.Minute))))
	}

	// Reachability: one conversation list call with a short budget and
	// no retries, which also proves the credential works end to end.
	if !cred.IsZero() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		start := time.Now()
		list, err := rt.client.ListConversations(ctx)
		if err != nil {
			fmt.Printf("  %s %s\n", labelStyle.Render("Connection:"),
				errorStyle.Render("failed")+" "+infoStyle.Render(err.Error()))
		} else {
			fmt.Printf("  %s %s\n", labelStyle.Render("Connection:"),
				successStyle.Render(fmt.Sprintf("ok (%s, %d conversations)",
					time.Since(start).Round(time.Millisecond), len(list))))
		}
	}

	fmt.Println()
	return nil
}
