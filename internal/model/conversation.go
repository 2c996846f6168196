// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds the metadata for one server-owned conversation.
// The server is the source of truth; the client caches these read-mostly.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	LastActivity time.Time `json:"last_activity"`
}

// ErrNoOpenAssistant is returned when a chunk arrives with no assistant
// message open for appending.
var ErrNoOpenAssistant = errors.New("no assistant message open for streaming")

// =============================================================================
// THREAD TYPE
// =============================================================================

// Thread is the in-memory message sequence for one conversation.
//
// Local optimistic messages are addressed arena-style: each message id maps
// to an index in the sequence, so reconciling a server-assigned id is an
// in-place update rather than a list search. At most one assistant message
// is open for appending at a time: the most recently appended one, and only
// while a streaming turn is in flight.
type Thread struct {
	ConversationID string

	messages []*Message
	byID     map[string]int // message id -> index in messages

	// openAssistant is the index of the assistant message currently open
	// for streaming appends, or -1 when none is open.
	openAssistant int
}

// NewThread creates an empty thread bound to a conversation id.
// The id may be empty until a bootstrap call assigns one.
func NewThread(conversationID string) *Thread {
	return &Thread{
		ConversationID: conversationID,
		byID:           make(map[string]int),
		openAssistant:  -1,
	}
}

// Append adds a message to the end of the sequence and indexes its id.
// If the message is an assistant placeholder still streaming, it becomes
// the single open streaming target.
func (t *Thread) Append(m *Message) {
	idx := len(t.messages)
	t.messages = append(t.messages, m)
	t.byID[m.ID] = idx
	if m.Role == RoleAssistant && m.IsStreaming {
		// Tolerate a dangling open target from an aborted turn: the most
		// recently appended assistant message always wins.
		if t.openAssistant >= 0 {
			t.messages[t.openAssistant].FinalizeStream()
		}
		t.openAssistant = idx
	}
}

// Reconcile replaces a local client-generated id with the durable id the
// server assigned. The message keeps its position; only the index entry and
// the id change.
func (t *Thread) Reconcile(localID, serverID string) bool {
	idx, ok := t.byID[localID]
	if !ok {
		return false
	}
	delete(t.byID, localID)
	m := t.messages[idx]
	m.ID = serverID
	m.Pending = false
	t.byID[serverID] = idx
	return true
}

// AppendChunk appends streamed content to the currently open assistant
// message. Chunks are applied strictly in call order; the transport is
// order-preserving so no sequence numbers are needed.
func (t *Thread) AppendChunk(chunk string) error {
	if t.openAssistant < 0 {
		return ErrNoOpenAssistant
	}
	t.messages[t.openAssistant].AppendChunk(chunk)
	return nil
}

// CloseStream finalizes the open assistant message, keeping whatever
// content has been received, and clears the open target.
// Returns the finalized message, or nil if no stream was open.
func (t *Thread) CloseStream() *Message {
	if t.openAssistant < 0 {
		return nil
	}
	m := t.messages[t.openAssistant]
	m.FinalizeStream()
	t.openAssistant = -1
	return m
}

// OpenAssistant returns the assistant message currently open for appending,
// or nil when none is.
func (t *Thread) OpenAssistant() *Message {
	if t.openAssistant < 0 {
		return nil
	}
	return t.messages[t.openAssistant]
}

// Get returns the message with the given id, or nil.
func (t *Thread) Get(id string) *Message {
	idx, ok := t.byID[id]
	if !ok {
		return nil
	}
	return t.messages[idx]
}

// Messages returns the message sequence in order. The returned slice is
// shared; callers must not mutate it.
func (t *Thread) Messages() []*Message {
	return t.messages
}

// Len returns the number of messages in the thread.
func (t *Thread) Len() int {
	return len(t.messages)
}

// Last returns the most recent message, or nil for an empty thread.
func (t *Thread) Last() *Message {
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}

// Replace resets the thread to the given server-provided history.
// Used when opening an existing conversation.
func (t *Thread) Replace(msgs []*Message) {
	t.messages = make([]*Message, 0, len(msgs))
	t.byID = make(map[string]int, len(msgs))
	t.openAssistant = -1
	for _, m := range msgs {
		t.Append(m)
	}
}
