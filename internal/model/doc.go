// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: server-owned conversation metadata, cached read-mostly
//   - Message: one chat message, optionally an optimistic local message
//     awaiting a server-assigned id
//   - Thread: the in-memory message sequence for one conversation, with
//     arena-style id reconciliation and a single open streaming target
//
// # Streaming Invariant
//
// Within a thread exactly one assistant message may be open for appending
// at a time: the most recently appended placeholder. Chunks are applied in
// arrival order to that message only, and partial content survives an
// aborted turn.
package model
