// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer is the shared glamour renderer for assistant replies.
// USABILITY: Renders markdown with syntax highlighting on TTY output.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails or is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse prints a reply, markdown-rendered only on a TTY so
// piped output stays clean.
func displayResponse(response string) {
	if IsStdoutTTY() {
		fmt.Print(renderMarkdown(response))
	} else {
		fmt.Print(response)
	}
}
