// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// A message created locally (before the server has confirmed it) carries a
// client-generated id with the "local-" prefix and Pending=true. Once the
// server assigns a durable id, Reconcile on the owning Thread swaps it in
// place without moving the message.
type Message struct {
	// Identity
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`

	// Content
	Content string `json:"content"`

	// Pending is true while the id is client-generated and the server has
	// not yet confirmed the message.
	Pending bool `json:"-"`

	// Streaming state (never serialized)
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`
}

// NewLocalID generates a client-side message id.
func NewLocalID() string {
	return "local-" + uuid.NewString()
}

// NewUserMessage creates an optimistic local user message.
func NewUserMessage(conversationID, content string) *Message {
	return &Message{
		ID:             NewLocalID(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
		Pending:        true,
	}
}

// NewAssistantPlaceholder creates an empty assistant message that is open
// for streaming appends.
func NewAssistantPlaceholder(conversationID string) *Message {
	return &Message{
		ID:             NewLocalID(),
		ConversationID: conversationID,
		Role:           RoleAssistant,
		CreatedAt:      time.Now(),
		Pending:        true,
		IsStreaming:    true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendChunk appends streamed content to an open assistant message.
// It is a no-op once the stream has been finalized.
func (m *Message) AppendChunk(chunk string) {
	if m.IsStreaming {
		m.streamContent.WriteString(chunk)
	}
}

// FinalizeStream closes the streaming target, merging the streamed content
// into Content. Already-received partial content is always kept, whether the
// turn completed or failed.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false
}

// DisplayContent returns the content to display (streaming or final).
func (m *Message) DisplayContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.DisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamContent.Len() == 0
}
