// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements argument parsing, command handlers, and terminal
// presentation for the tidechat binary.
package cli
