// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection and handling for the tidechat CLI.
//
// USABILITY: TTY detection for proper terminal handling
//
// Colors are disabled automatically for piped or redirected output,
// NO_COLOR (https://no-color.org/) is respected, and FORCE_COLOR
// overrides detection for CI systems that support ANSI anyway.
package cli

import (
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
// Use this to determine if interactive prompts are possible.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
// Use this to determine if colored output should be used.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL WIDTH
// =============================================================================

const defaultTerminalWidth = 80

// GetTerminalWidth returns the terminal width in columns, or a default
// when stdout is not a terminal.
func GetTerminalWidth() int {
	if !IsStdoutTTY() {
		return defaultTerminalWidth
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return width
}

// =============================================================================
// COLOR CONTROL
// =============================================================================

var (
	colorOnce    sync.Once
	colorEnabled bool
)

// ColorsEnabled reports whether styled output should be emitted.
// Precedence: NO_COLOR > FORCE_COLOR > TTY detection.
func ColorsEnabled() bool {
	colorOnce.Do(func() {
		if os.Getenv("NO_COLOR") != "" {
			colorEnabled = false
			return
		}
		if v := os.Getenv("FORCE_COLOR"); v != "" && v != "0" {
			colorEnabled = true
			return
		}
		colorEnabled = IsStdoutTTY()
	})
	return colorEnabled
}

// GetColorProfile returns the termenv profile for the current terminal,
// downgraded to ASCII when colors are disabled.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// WrapText wraps text at word boundaries to the given width. Lines with
// no break opportunity are left intact.
func WrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	var out strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(wrapLine(line, width))
	}
	return out.String()
}

func wrapLine(line string, width int) string {
	if len(line) <= width {
		return line
	}

	words := strings.Fields(line)
	if len(words) == 0 {
		return line
	}

	var out strings.Builder
	lineLen := 0
	for i, word := range words {
		if i > 0 {
			if lineLen+1+len(word) > width {
				out.WriteString("\n")
				lineLen = 0
			} else {
				out.WriteString(" ")
				lineLen++
			}
		}
		out.WriteString(word)
		lineLen += len(word)
	}
	return out.String()
}
