// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat_cmd.go - Interactive chat command handler for the tidechat CLI.
//
// Handles the "tidechat chat" command: a REPL that streams assistant
// replies from the Tide service into the terminal.
//
// Command: chat
// Short:   Start or resume an interactive chat session
//
// Examples:
//   tidechat                  Start a new conversation
//   tidechat chat 2f6b1c      Resume conversation 2f6b1c
//
// Interactive Commands (during chat):
//   /list               List conversations
//   /open <id>          Switch to another conversation
//   /new                Start a fresh conversation
//   /reconnect          Redial the channel after a failure
//   /status             Show channel state
//   /history            Show the conversation transcript
//   /help, /h           Show available commands
//   /quit, /q           Exit chat
//   Ctrl+D              Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/tidechat-cli/internal/auth"
	"github.com/jeranaias/tidechat-cli/internal/chat"
	"github.com/jeranaias/tidechat-cli/internal/config"
	"github.com/jeranaias/tidechat-cli/internal/model"
	"github.com/jeranaias/tidechat-cli/internal/util"
)

// chatCmd holds the state for one interactive session.
type chatCmd struct {
	rt          *appRuntime
	input       *LineReader
	useMarkdown bool
	quiet       bool

	// replyDone receives one value per finished (or failed) reply.
	replyDone chan struct{}
	// reply accumulates the streamed content for markdown rendering.
	replyStart time.Time
}

// HandleChat runs the interactive chat REPL.
func HandleChat(args Args) error {
	rt, err := newRuntime(args)
	if err != nil {
		return err
	}
	if err := rt.requireCredential(); err != nil {
		return fmt.Errorf("not signed in; run: tidechat login")
	}

	c := &chatCmd{
		rt:          rt,
		input:       NewLineReader(),
		useMarkdown: IsStdoutTTY() && rt.cfg.UI.RenderMarkdown,
		quiet:       args.Quiet,
		replyDone:   make(chan struct{}, 1),
	}
	defer c.input.Close()
	defer rt.manager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Config edits apply to the next command; a live session just notes
	// the change.
	go config.Watch(ctx, rt.log, func(cfg *config.Config) {
		rt.log.Info().Msg("configuration reloaded")
	})

	c.registerCallbacks()

	if args.ConversationID != "" {
		if err := rt.manager.Open(ctx, args.ConversationID); err != nil {
			return fmt.Errorf("failed to open conversation %s: %w", args.ConversationID, err)
		}
		c.printTranscript()
	}

	if !c.quiet {
		c.printWelcome()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	return c.repl(ctx, sigChan)
}

// registerCallbacks wires the streaming session into terminal output.
// Chunks print as they arrive unless markdown rendering collects the
// whole reply for formatting at the end.
func (c *chatCmd) registerCallbacks() {
	c.rt.session.OnChunk(func(content string) {
		if !c.useMarkdown {
			fmt.Print(content)
		}
	})
	c.rt.session.OnComplete(func(msg *model.Message) {
		if c.useMarkdown {
			displayResponse(msg.DisplayContent())
		}
		fmt.Println()
		if !c.quiet {
			fmt.Fprintf(os.Stderr, "%s %s\n",
				infoStyle.Render("[Done]"),
				time.Since(c.replyStart).Round(time.Millisecond))
		}
		c.rt.manager.InvalidateConversations()
		c.signalDone()
	})
	c.rt.session.OnError(func(err error) {
		fmt.Fprintf(os.Stderr, "\n%s %v\n", errorStyle.Render("[Channel]"), err)
		fmt.Fprintln(os.Stderr, infoStyle.Render("Partial reply kept. Use /reconnect to dial again."))
		c.signalDone()
	})
}

func (c *chatCmd) signalDone() {
	select {
	case c.replyDone <- struct{}{}:
	default:
	}
}

// repl is the main read-eval loop.
func (c *chatCmd) repl(ctx context.Context, sigChan chan os.Signal) error {
	for {
		input, err := c.input.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed terminal all
			// end the session cleanly.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, liner.ErrNotTerminalOutput) {
				fmt.Println()
			}
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont, err := c.handleSlashCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !cont {
				fmt.Println(infoStyle.Render("Goodbye!"))
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		if err := c.sendMessage(ctx, sigChan, input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// sendMessage delivers one user message and waits for the reply.
func (c *chatCmd) sendMessage(ctx context.Context, sigChan chan os.Signal, input string) error {
	bound := c.rt.manager.ConversationID() != ""
	c.replyStart = time.Now()

	fmt.Println()
	if err := c.rt.manager.Send(ctx, input); err != nil {
		if errors.Is(err, chat.ErrConnectionLost) {
			return fmt.Errorf("channel is not open (state: %s); use /reconnect", c.rt.manager.State())
		}
		return err
	}

	if !bound {
		// The first message of a new chat travels over the request
		// pipeline, so the full reply is already in the thread.
		if msg := c.rt.manager.Thread().Last(); msg != nil && msg.Role == model.RoleAssistant {
			if c.useMarkdown {
				displayResponse(msg.DisplayContent())
			} else {
				fmt.Print(msg.DisplayContent())
			}
			fmt.Println()
		}
		if !c.quiet {
			fmt.Fprintf(os.Stderr, "%s conversation %s\n",
				infoStyle.Render("[New]"),
				c.rt.manager.ConversationID())
		}
		return nil
	}

	// Streamed reply: wait for completion, or Ctrl+C to abandon it.
	select {
	case <-c.replyDone:
	case <-sigChan:
		c.rt.manager.Close()
		fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]")+
			infoStyle.Render(" channel closed; partial reply kept, /reconnect to resume"))
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func (c *chatCmd) handleSlashCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		c.printHelp()
		return true, nil

	case "/list", "/ls":
		return true, c.printConversations(ctx)

	case "/open", "/o":
		if len(args) == 0 {
			return true, fmt.Errorf("usage: /open <conversation-id>")
		}
		if err := c.rt.manager.Open(ctx, args[0]); err != nil {
			return true, err
		}
		c.printTranscript()
		fmt.Printf("%s %s\n", successStyle.Render("[Open]"), args[0])
		return true, nil

	case "/new", "/n":
		c.rt.manager.New()
		fmt.Println(successStyle.Render("[New conversation]"))
		return true, nil

	case "/reconnect", "/r":
		if err := c.rt.manager.Reconnect(ctx); err != nil {
			return true, err
		}
		fmt.Printf("%s %s\n", successStyle.Render("[Reconnected]"), c.rt.manager.ConversationID())
		return true, nil

	case "/status", "/s":
		c.printStatus()
		return true, nil

	case "/history":
		c.printTranscript()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

func (c *chatCmd) printWelcome() {
	fmt.Println()
	fmt.Println(titleStyle.Render("tidechat"))
	fmt.Println(renderSeparator(30))
	fmt.Printf("%s %s\n", labelStyle.Render("Server:"), c.rt.cfg.Server.URL)
	if id := c.rt.manager.ConversationID(); id != "" {
		fmt.Printf("%s %s\n", labelStyle.Render("Conversation:"), id)
	} else {
		fmt.Printf("%s %s\n", labelStyle.Render("Conversation:"), dimStyle.Render("new (created on first message)"))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func (c *chatCmd) printHelp() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Available Commands"))
	fmt.Println(renderSeparator(20))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/list", "List conversations"},
		{"/open <id>", "Switch to another conversation"},
		{"/new", "Start a fresh conversation"},
		{"/reconnect", "Redial the channel after a failure"},
		{"/status, /s", "Show channel state"},
		{"/history", "Show the conversation transcript"},
		{"/help, /h", "Show this help"},
		{"/quit, /q", "Exit chat"},
	}
	for _, entry := range commands {
		fmt.Printf("  %s  %s\n",
			successStyle.Render(fmt.Sprintf("%-15s", entry.cmd)),
			infoStyle.Render(entry.desc))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C abandons the current reply, Ctrl+D exits"))
	fmt.Println()
}

func (c *chatCmd) printStatus() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Session Status"))
	fmt.Println(renderSeparator(20))
	fmt.Println()

	state := c.rt.manager.State()
	rendered := state.String()
	switch state {
	case chat.StateOpen, chat.StateStreaming:
		rendered = successStyle.Render(rendered)
	case chat.StateError:
		rendered = errorStyle.Render(rendered)
	default:
		rendered = warningStyle.Render(rendered)
	}

	fmt.Printf("  %s %s\n", labelStyle.Render("Channel:"), rendered)
	if id := c.rt.manager.ConversationID(); id != "" {
		fmt.Printf("  %s %s\n", labelStyle.Render("Conversation:"), id)
	} else {
		fmt.Printf("  %s %s\n", labelStyle.Render("Conversation:"), dimStyle.Render("none"))
	}
	fmt.Printf("  %s %d messages\n", labelStyle.Render("History:"), c.rt.manager.Thread().Len())

	cred := c.rt.guard.Credential()
	if cred.IsZero() {
		fmt.Printf("  %s %s\n", labelStyle.Render("Credential:"), errorStyle.Render("missing"))
	} else if cred.Expiring(auth.LowWaterMark) {
		fmt.Printf("  %s %s\n", labelStyle.Render("Credential:"), warningStyle.Render("expiring soon"))
	} else {
		fmt.Printf("  %s %s\n", labelStyle.Render("Credential:"),
			successStyle.Render("valid until "+cred.ExpiresAt.Local().Format("15:04:05")))
	}
	fmt.Println()
}

func (c *chatCmd) printConversations(ctx context.Context) error {
	list, err := c.rt.manager.Conversations(ctx, true)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println(infoStyle.Render("[No conversations yet]"))
		return nil
	}

	fmt.Println()
	for _, conv := range list {
		marker := "  "
		if conv.ID == c.rt.manager.ConversationID() {
			marker = successStyle.Render("* ")
		}
		fmt.Printf("%s%s  %s %s\n",
			marker,
			userStyle.Render(conv.ID),
			util.TruncateRunes(conv.Title, 50),
			dimStyle.Render(fmt.Sprintf("(%d msgs, %s)",
				conv.MessageCount,
				util.FormatRelativeTime(conv.LastActivity))))
	}
	fmt.Println()
	return nil
}

func (c *chatCmd) printTranscript() {
	msgs := c.rt.manager.Thread().Messages()
	if len(msgs) == 0 {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Conversation"))
	fmt.Println(renderSeparator(25))
	fmt.Println()

	for i, msg := range msgs {
		role := msg.Role.DisplayName()
		switch msg.Role {
		case model.RoleUser:
			role = userStyle.Render(role)
		case model.RoleAssistant:
			role = assistantStyle.Render(role)
		}
		fmt.Printf("  %d. %s: %s\n", i+1, role, msg.Preview(100))
	}
	fmt.Println()
}
