// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

// =============================================================================
// WIRE FRAMES
// =============================================================================

// Frame types exchanged over the chat channel. The client sends auth and
// message frames; the service sends start, chunk, complete, and error.
const (
	frameAuth     = "auth"
	frameMessage  = "message"
	frameStart    = "start"
	frameChunk    = "chunk"
	frameComplete = "complete"
	frameError    = "error"
)

// frame is the single wire structure for all channel traffic. Fields are
// populated per type; unused fields are omitted from the encoding.
type frame struct {
	Type string `json:"type"`

	// auth (client -> server)
	Token string `json:"token,omitempty"`

	// message (client -> server): Content plus the client-assigned
	// LocalID the server echoes back in the start frame.
	// chunk (server -> client): the next content fragment.
	Content string `json:"content,omitempty"`
	LocalID string `json:"local_id,omitempty"`

	// start (server -> client): canonical ids for the optimistic user
	// message and the assistant reply now streaming.
	UserMessageID string `json:"user_message_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`

	// error (server -> client)
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
