// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration commands for the tidechat CLI.
//
// Command: config
// Short:   Show and edit configuration
//
// Examples:
//   tidechat config                 Show current configuration
//   tidechat config path            Print the config file path
//   tidechat config set server.url https://tide.internal.example
//   tidechat config set request.timeout_secs 60
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/tidechat-cli/internal/config"
)

// HandleConfig dispatches config subcommands.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args)
	case "path":
		path, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "set":
		return configSet(args)
	default:
		return fmt.Errorf("unknown config subcommand: %s (expected show, set, or path)", args.Subcommand)
	}
}

func configShow(args Args) error {
	cfg := config.Global()

	fmt.Println()
	fmt.Println(titleStyle.Render("Configuration"))
	fmt.Println(renderSeparator(30))
	fmt.Printf("  %s %s\n", labelStyle.Render("server.url"), cfg.Server.URL)
	fmt.Printf("  %s %s\n", labelStyle.Render("server.ws_url"), orDefault(cfg.Server.WSURL, dimStyle.Render("(derived from server.url)")))
	fmt.Printf("  %s %d\n", labelStyle.Render("request.timeout_secs"), cfg.Request.TimeoutSecs)
	fmt.Printf("  %s %d\n", labelStyle.Render("request.max_retries"), cfg.Request.MaxRetries)
	fmt.Printf("  %s %d\n", labelStyle.Render("request.retry_base_millis"), cfg.Request.RetryBaseMillis)
	fmt.Printf("  %s %t\n", labelStyle.Render("ui.render_markdown"), cfg.UI.RenderMarkdown)
	fmt.Printf("  %s %s\n", labelStyle.Render("ui.theme"), cfg.UI.Theme)
	fmt.Printf("  %s %s\n", labelStyle.Render("log.level"), cfg.Log.Level)
	fmt.Println()

	if path, err := config.Path(); err == nil {
		fmt.Println(infoStyle.Render("File: " + path))
	}
	fmt.Println()
	return nil
}

// configSet updates one key and persists the file. Values are validated
// before saving so a bad edit never lands on disk.
func configSet(args Args) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return fmt.Errorf("usage: tidechat config set <key> <value>")
	}

	cfg := config.Global()
	key := strings.ToLower(args.ConfigKey)
	val := args.ConfigVal

	switch key {
	case "server.url":
		cfg.Server.URL = val
	case "server.ws_url":
		cfg.Server.WSURL = val
	case "request.timeout_secs":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.Request.TimeoutSecs = n
	case "request.max_retries":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.Request.MaxRetries = n
	case "request.retry_base_millis":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.Request.RetryBaseMillis = n
	case "ui.render_markdown":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%s must be true or false: %w", key, err)
		}
		cfg.UI.RenderMarkdown = b
	case "ui.theme":
		cfg.UI.Theme = val
	case "log.level":
		cfg.Log.Level = val
	default:
		return fmt.Errorf("unknown config key: %s", args.ConfigKey)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	config.SetGlobal(cfg)

	fmt.Printf("%s %s = %s\n", successStyle.Render("[OK]"), key, val)
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
