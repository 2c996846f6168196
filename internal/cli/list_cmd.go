// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// list_cmd.go - Conversation management commands for the tidechat CLI.
//
// Command: list
// Short:   List conversations
//
// Command: delete
// Short:   Delete a conversation (requires --confirm)
//
// Command: rename
// Short:   Rename a conversation
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jeranaias/tidechat-cli/internal/util"
)

// HandleList prints the conversation list, newest first.
func HandleList(args Args) error {
	rt, err := newRuntime(args)
	if err != nil {
		return err
	}
	if err := rt.requireCredential(); err != nil {
		return fmt.Errorf("not signed in; run: tidechat login")
	}

	list, err := rt.client.ListConversations(context.Background())
	if err != nil {
		return err
	}

	if args.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Println(infoStyle.Render("No conversations yet. Start one with: tidechat"))
		return nil
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Conversations"))
	fmt.Println(renderSeparator(40))
	for _, conv := range list {
		fmt.Printf("  %s  %-50s %s\n",
			userStyle.Render(conv.ID),
			util.TruncateRunes(conv.Title, 50),
			dimStyle.Render(fmt.Sprintf("%d msgs, %s",
				conv.MessageCount,
				util.FormatRelativeTime(conv.LastActivity))))
	}
	fmt.Println()
	return nil
}

// HandleDelete deletes a conversation permanently. Requires --confirm so
// a mistyped id does not destroy history.
func HandleDelete(args Args) error {
	if args.ConversationID == "" {
		return fmt.Errorf("usage: tidechat delete <id> --confirm")
	}
	if !hasConfirmFlag(args.Raw) {
		return fmt.Errorf("deletion is permanent; re-run with --confirm")
	}

	rt, err := newRuntime(args)
	if err != nil {
		return err
	}
	if err := rt.requireCredential(); err != nil {
		return fmt.Errorf("not signed in; run: tidechat login")
	}

	if err := rt.client.DeleteConversation(context.Background(), args.ConversationID); err != nil {
		return err
	}
	fmt.Printf("%s Deleted conversation %s\n", successStyle.Render("[OK]"), args.ConversationID)
	return nil
}

// HandleRename changes a conversation's title.
func HandleRename(args Args) error {
	if args.ConversationID == "" || args.Title == "" {
		return fmt.Errorf("usage: tidechat rename <id> <title>")
	}

	rt, err := newRuntime(args)
	if err != nil {
		return err
	}
	if err := rt.requireCredential(); err != nil {
		return fmt.Errorf("not signed in; run: tidechat login")
	}

	if err := rt.client.RenameConversation(context.Background(), args.ConversationID, args.Title); err != nil {
		return err
	}
	fmt.Printf("%s Renamed %s to %q\n", successStyle.Render("[OK]"), args.ConversationID, args.Title)
	return nil
}

func hasConfirmFlag(raw []string) bool {
	for _, arg := range raw {
		if arg == "--confirm" || arg == "-y" {
			return true
		}
	}
	return false
}
