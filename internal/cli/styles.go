// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for all tidechat CLI commands.
//
// Colors are disabled for non-TTY output and NO_COLOR is respected;
// see terminal.go for the detection logic.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// init configures lipgloss color profile based on terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// titleStyle is used for command titles and headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// promptStyle is the interactive input prompt
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// labelStyle is used for field labels
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// successStyle is used for success messages
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// errorStyle is used for error messages and failures
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// warningStyle is used for warnings and degraded states
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// infoStyle is used for secondary information and hints
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// dimStyle is used for de-emphasized text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray

	// assistantStyle marks assistant text in transcripts
	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")) // Purple

	// userStyle marks user text in transcripts
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // Cyan
)

// renderSeparator renders a horizontal separator line.
func renderSeparator(width int) string {
	if width <= 0 {
		width = 30
	}
	return dimStyle.Render(strings.Repeat("─", width))
}
