// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming chat channel: the WebSocket
// session state machine, the wire frames, and the manager that hands a
// brand-new conversation off from the request pipeline to the channel.
//
// A session serves one conversation at a time and never reconnects on
// its own. Replies stream in ordered chunks into the conversation
// thread; a server error mid-stream keeps whatever content arrived and
// parks the session in a terminal error state until the caller connects
// again.
package chat
