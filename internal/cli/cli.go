// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for tidechat.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdLogin
	CmdLogout
	CmdList
	CmdDelete
	CmdRename
	CmdStatus
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool // Output in JSON format

	// Command-specific
	ConversationID string
	Title          string
	ConfigKey      string
	ConfigVal      string
	Subcommand     string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `tidechat - terminal client for the Tide chat service

Tidechat streams assistant replies straight into your terminal,
keeps your conversations on the server, and renders markdown
when stdout is a TTY.

Usage:
  tidechat                     Start interactive chat (new conversation)
  tidechat chat [id]           Start or resume a conversation
  tidechat login               Sign in and store a credential
  tidechat logout              Discard the stored credential
  tidechat list                List conversations
  tidechat delete <id>         Delete a conversation (requires --confirm)
  tidechat rename <id> <title> Rename a conversation
  tidechat status              Show connection and credential status
  tidechat config [show|set|path] Configuration
  tidechat version             Show version information

Interactive Commands (during chat):
  /list                        List conversations
  /open <id>                   Switch to another conversation
  /new                         Start a fresh conversation
  /reconnect                   Redial the channel after a failure
  /status                      Show channel state
  /help                        Show available commands
  /quit                        Exit chat
  Ctrl+D                       Exit chat

Global Flags:
  -q, --quiet                  Minimal output
  -v, --verbose                Debug logging to stderr
  --json                       Machine-readable output where supported

Configuration:
  File: ~/.tidechat/config.toml
  Environment overrides: TIDECHAT_SERVER_URL, TIDECHAT_WS_URL,
  TIDECHAT_TIMEOUT_SECS, TIDECHAT_MAX_RETRIES, TIDECHAT_LOG_LEVEL,
  TIDECHAT_THEME

Examples:
  tidechat login
  tidechat
  tidechat chat 2f6b1c
  tidechat list --json
  tidechat rename 2f6b1c "Postgres tuning notes"
  tidechat delete 2f6b1c --confirm
  tidechat config set server.url https://tide.internal.example

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("tidechat version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	raw := os.Args[1:]

	remaining, parsed := parseGlobalFlags(raw)

	// No command defaults to a fresh interactive chat.
	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "chat", "c":
		if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
			parsed.ConversationID = remaining[0]
		}
		return CmdChat, parsed

	case "login", "auth":
		return CmdLogin, parsed

	case "logout":
		return CmdLogout, parsed

	case "list", "ls", "conversations":
		return CmdList, parsed

	case "delete", "rm":
		if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
			parsed.ConversationID = remaining[0]
		}
		return CmdDelete, parsed

	case "rename", "mv":
		if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
			parsed.ConversationID = remaining[0]
		}
		if len(remaining) > 1 {
			parsed.Title = strings.Join(remaining[1:], " ")
		}
		return CmdRename, parsed

	case "status", "s":
		return CmdStatus, parsed

	case "config":
		parseConfigArgs(&parsed, remaining)
		return CmdConfig, parsed

	case "version", "--version", "-V":
		return CmdVersion, parsed

	case "help", "--help", "-h":
		return CmdHelp, parsed

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, parsed
	}
}

// parseGlobalFlags extracts global flags and returns the remaining args.
func parseGlobalFlags(raw []string) ([]string, Args) {
	var args Args
	remaining := make([]string, 0, len(raw))

	for _, arg := range raw {
		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, args
}

// parseConfigArgs handles "config [show|set|path] [key] [value]".
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) == 0 {
		args.Subcommand = "show"
		return
	}
	args.Subcommand = strings.ToLower(remaining[0])
	if len(remaining) > 1 {
		args.ConfigKey = remaining[1]
	}
	if len(remaining) > 2 {
		args.ConfigVal = strings.Join(remaining[2:], " ")
	}
}
