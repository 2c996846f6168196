// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jeranaias/tidechat-cli/internal/model"
)

// =============================================================================
// CONVERSATION ENDPOINTS
// =============================================================================

type conversationListResponse struct {
	Conversations []model.Conversation `json:"conversations"`
}

// ConversationDetail is a conversation with its full message history.
type ConversationDetail struct {
	model.Conversation
	Messages []*model.Message `json:"messages"`
}

// BootstrapResult is the response to creating a conversation from its
// first message: the new conversation id plus the server's canonical
// copies of the opening user message and the assistant reply.
type BootstrapResult struct {
	ConversationID   string         `json:"conversation_id"`
	UserMessage      *model.Message `json:"user_message"`
	AssistantMessage *model.Message `json:"assistant_message"`
}

// ListConversations returns the caller's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var resp conversationListResponse
	if err := c.Do(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// GetConversation fetches one conversation with its message history.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	var detail ConversationDetail
	if err := c.Do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteConversation permanently removes a conversation. Deletes are not
// retried: a repeated DELETE after an ambiguous failure could race a
// concurrent recreate.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id), nil, nil, WithoutRetry())
}

// RenameConversation changes a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	body := struct {
		Title string `json:"title"`
	}{Title: title}
	return c.Do(ctx, http.MethodPatch, "/api/conversations/"+url.PathEscape(id), body, nil)
}

// StartConversation creates a conversation from its first message in a
// single call, so a brand-new chat needs no separate create step before
// the streaming channel can be opened.
func (c *Client) StartConversation(ctx context.Context, content string) (*BootstrapResult, error) {
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	var result BootstrapResult
	if err := c.Do(ctx, http.MethodPost, "/api/chat", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
