// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/tidechat-cli/internal/api"
	"github.com/jeranaias/tidechat-cli/internal/model"
)

// ErrNoConversation is returned by operations that need an active
// conversation when none is open.
var ErrNoConversation = errors.New("no active conversation")

// conversationAPI is the slice of the request client the manager needs.
// Narrowed for tests.
type conversationAPI interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*api.ConversationDetail, error)
	StartConversation(ctx context.Context, content string) (*api.BootstrapResult, error)
}

// channelSession is the slice of the streaming session the manager needs.
type channelSession interface {
	Connect(ctx context.Context, conversationID string, thread *model.Thread) error
	Send(ctx context.Context, content string) (*model.Message, error)
	State() State
	Close()
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager coordinates the request client and the streaming session around
// one active conversation. Its main job is the bootstrap handoff: a brand
// new chat has no conversation id, so the first send creates the
// conversation over the request pipeline, binds the returned id, and only
// then opens the streaming channel for everything that follows.
type Manager struct {
	client  conversationAPI
	session channelSession
	log     zerolog.Logger

	mu             sync.Mutex
	conversationID string
	thread         *model.Thread

	cacheMu       sync.Mutex
	conversations []model.Conversation
}

// NewManager creates a manager with no active conversation.
func NewManager(client conversationAPI, session channelSession, log zerolog.Logger) *Manager {
	return &Manager{
		client:  client,
		session: session,
		log:     log,
		thread:  model.NewThread(""),
	}
}

// ConversationID returns the active conversation id, or "" before the
// first send of a new chat.
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Thread returns the active message thread.
func (m *Manager) Thread() *model.Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thread
}

// State reports the streaming channel state.
func (m *Manager) State() State {
	return m.session.State()
}

// New abandons the current conversation and starts a fresh, unbound one.
// The next Send will create it server-side.
func (m *Manager) New() {
	m.session.Close()
	m.mu.Lock()
	m.conversationID = ""
	m.thread = model.NewThread("")
	m.mu.Unlock()
}

// Open loads an existing conversation's history and connects its channel.
func (m *Manager) Open(ctx context.Context, conversationID string) error {
	detail, err := m.client.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	thread := model.NewThread(conversationID)
	thread.Replace(detail.Messages)

	m.mu.Lock()
	m.conversationID = conversationID
	m.thread = thread
	m.mu.Unlock()

	return m.session.Connect(ctx, conversationID, thread)
}

// Reconnect dials the active conversation's channel again after a failure.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	id, thread := m.conversationID, m.thread
	m.mu.Unlock()
	if id == "" {
		return ErrNoConversation
	}
	return m.session.Connect(ctx, id, thread)
}

// Send delivers a user message. An unbound chat is bootstrapped first:
// the conversation is created from this message in one request call, the
// returned id is bound, and the channel is opened. Bound chats send over
// the channel directly.
func (m *Manager) Send(ctx context.Context, content string) error {
	m.mu.Lock()
	bound := m.conversationID != ""
	m.mu.Unlock()

	if !bound {
		return m.bootstrap(ctx, content)
	}
	_, err := m.session.Send(ctx, content)
	return err
}

// bootstrap creates the conversation from its first message and hands off
// to the streaming channel. The create call happens exactly once per new
// chat; if the subsequent channel dial fails the conversation still
// exists, and Reconnect retries only the dial.
func (m *Manager) bootstrap(ctx context.Context, content string) error {
	result, err := m.client.StartConversation(ctx, content)
	if err != nil {
		return err
	}

	thread := model.NewThread(result.ConversationID)
	if result.UserMessage != nil {
		thread.Append(result.UserMessage)
	}
	if result.AssistantMessage != nil {
		thread.Append(result.AssistantMessage)
		thread.CloseStream()
	}

	m.mu.Lock()
	m.conversationID = result.ConversationID
	m.thread = thread
	m.mu.Unlock()

	m.log.Debug().Str("conversation_id", result.ConversationID).Msg("conversation bootstrapped")
	m.InvalidateConversations()

	return m.session.Connect(ctx, result.ConversationID, thread)
}

// Conversations returns the conversation list, served from cache unless
// refresh is set or the cache is cold.
func (m *Manager) Conversations(ctx context.Context, refresh bool) ([]model.Conversation, error) {
	m.cacheMu.Lock()
	cached := m.conversations
	m.cacheMu.Unlock()
	if !refresh && cached != nil {
		return cached, nil
	}

	list, err := m.client.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	m.cacheMu.Lock()
	m.conversations = list
	m.cacheMu.Unlock()
	return list, nil
}

// InvalidateConversations drops the cached list so the next Conversations
// call fetches fresh metadata. Completed turns bump server-side timestamps
// and titles, so callers invalidate after each finished reply.
func (m *Manager) InvalidateConversations() {
	m.cacheMu.Lock()
	m.conversations = nil
	m.cacheMu.Unlock()
}

// Close shuts down the streaming channel.
func (m *Manager) Close() {
	m.session.Close()
}
