// tidechat - terminal client for the Tide chat service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/tidechat-cli/internal/cli"
	"github.com/jeranaias/tidechat-cli/internal/config"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	// Load configuration once; commands read the shared copy.
	if cfg, err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	} else {
		config.SetGlobal(cfg)
	}

	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdChat:
		err = cli.HandleChat(args)
	case cli.CmdLogin:
		err = cli.HandleLogin(args)
	case cli.CmdLogout:
		err = cli.HandleLogout(args)
	case cli.CmdList:
		err = cli.HandleList(args)
	case cli.CmdDelete:
		err = cli.HandleDelete(args)
	case cli.CmdRename:
		err = cli.HandleRename(args)
	case cli.CmdStatus:
		err = cli.HandleStatus(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
