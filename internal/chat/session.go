// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/jeranaias/tidechat-cli/internal/api"
	"github.com/jeranaias/tidechat-cli/internal/auth"
	"github.com/jeranaias/tidechat-cli/internal/model"
)

// ErrConnectionLost is returned by Send when the channel is not open.
var ErrConnectionLost = errors.New("chat channel is not open")

// =============================================================================
// SESSION STATE
// =============================================================================

// State is the chat channel lifecycle state.
type State int

const (
	// StateClosed means no channel is active. Initial state, and the
	// state after a clean shutdown.
	StateClosed State = iota

	// StateConnecting means the transport dial is in progress.
	StateConnecting

	// StateAuthenticating means the channel is up and the credential
	// frame is being presented.
	StateAuthenticating

	// StateOpen means the channel is ready to accept a send.
	StateOpen

	// StateStreaming means an assistant reply is arriving in chunks.
	StateStreaming

	// StateError is terminal: the channel failed and stays failed until
	// a new Connect replaces it.
	StateError
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the streaming chat channel for exactly one conversation at a
// time. Connecting to a new conversation tears down the previous channel
// first. A failed session never reconnects on its own: the caller decides
// when to dial again.
type Session struct {
	wsBase string
	guard  *auth.Guard
	log    zerolog.Logger

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	cancel         context.CancelFunc
	gen            int
	conversationID string
	thread         *model.Thread

	// Callbacks fire from the reader goroutine, outside the lock.
	onChunk    func(content string)
	onComplete func(msg *model.Message)
	onError    func(err error)
}

// NewSession creates a session dialing channels under wsBase
// (e.g. "wss://api.tidechat.dev"). The guard supplies the credential
// presented when a channel opens.
func NewSession(wsBase string, guard *auth.Guard, log zerolog.Logger) *Session {
	return &Session{
		wsBase: wsBase,
		guard:  guard,
		log:    log,
		state:  StateClosed,
	}
}

// OnChunk registers a callback invoked for each streamed content fragment.
func (s *Session) OnChunk(fn func(content string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = fn
}

// OnComplete registers a callback invoked when a streamed reply finishes.
func (s *Session) OnComplete(fn func(msg *model.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// OnError registers a callback invoked when the channel fails.
func (s *Session) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// State returns the current channel state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the conversation bound to the channel, or "".
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Thread returns the message thread backing the current conversation.
func (s *Session) Thread() *model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread
}

// Connect opens the channel for the given conversation, tearing down any
// previous channel first. The thread receives all messages applied from
// the wire. Connect may be called from any state, including StateError.
func (s *Session) Connect(ctx context.Context, conversationID string, thread *model.Thread) error {
	s.mu.Lock()
	s.teardownLocked(websocket.StatusNormalClosure, "switching conversation")
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.conversationID = conversationID
	s.thread = thread
	s.mu.Unlock()

	u := s.wsBase + "/ws/chat/" + url.PathEscape(conversationID)
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		s.failIfCurrent(gen, fmt.Errorf("chat channel dial failed: %w", err))
		return &api.Error{Kind: api.KindNetwork, Message: fmt.Sprintf("chat channel dial failed: %v", err)}
	}
	// Streamed replies can be large.
	conn.SetReadLimit(api.MaxResponseSize)

	s.mu.Lock()
	if gen != s.gen {
		// A newer Connect raced us; this channel is already obsolete.
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return nil
	}
	s.conn = conn
	s.state = StateAuthenticating
	s.mu.Unlock()

	token, err := s.guard.Token(ctx)
	if err != nil {
		// failIfCurrent no-ops when a newer Connect superseded this one; the
		// newer generation already owns (and closed) the stored conn.
		s.failIfCurrent(gen, fmt.Errorf("no valid credential for chat channel: %w", err))
		return &api.Error{Kind: api.KindAuthExpired, Message: "no valid credential for chat channel"}
	}
	if err := writeFrame(ctx, conn, frame{Type: frameAuth, Token: token}); err != nil {
		s.failIfCurrent(gen, err)
		return &api.Error{Kind: api.KindChannel, Message: fmt.Sprintf("chat channel auth failed: %v", err)}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return nil
	}
	s.cancel = cancel
	s.state = StateOpen
	s.mu.Unlock()

	s.log.Debug().Str("conversation_id", conversationID).Msg("chat channel open")
	go s.readLoop(readCtx, conn, gen)
	return nil
}

// Send transmits a user message over the channel. The message is appended
// to the thread optimistically with a client-assigned id before the write,
// so it is visible immediately; the id is reconciled to the server's when
// the start frame arrives.
func (s *Session) Send(ctx context.Context, content string) (*model.Message, error) {
	s.mu.Lock()
	if s.state != StateOpen && s.state != StateStreaming {
		s.mu.Unlock()
		return nil, ErrConnectionLost
	}
	conn := s.conn
	gen := s.gen
	msg := model.NewUserMessage(s.conversationID, content)
	s.thread.Append(msg)
	s.mu.Unlock()

	if err := writeFrame(ctx, conn, frame{Type: frameMessage, Content: content, LocalID: msg.ID}); err != nil {
		s.failIfCurrent(gen, err)
		return msg, &api.Error{Kind: api.KindChannel, Message: fmt.Sprintf("chat send failed: %v", err)}
	}
	return msg, nil
}

// Close shuts the channel down cleanly. Safe to call in any state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked(websocket.StatusNormalClosure, "client closing")
	s.gen++
	s.state = StateClosed
}

// =============================================================================
// READER
// =============================================================================

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.readFailed(gen, err)
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			// A peer that sends garbage cannot be trusted to frame the rest
			// of the stream either. Fail the channel, keeping any partial.
			s.readFailed(gen, fmt.Errorf("malformed chat frame: %w", err))
			return
		}
		s.apply(gen, f)
	}
}

// apply mutates the thread and state machine for one inbound frame.
// Frames are applied strictly in arrival order by the single reader.
func (s *Session) apply(gen int, f frame) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	switch f.Type {
	case frameStart:
		if f.LocalID != "" && f.UserMessageID != "" {
			s.thread.Reconcile(f.LocalID, f.UserMessageID)
		}
		placeholder := model.NewAssistantPlaceholder(s.conversationID)
		if f.MessageID != "" {
			placeholder.ID = f.MessageID
		}
		s.thread.Append(placeholder)
		s.state = StateStreaming
		s.mu.Unlock()

	case frameChunk:
		if err := s.thread.AppendChunk(f.Content); err != nil {
			s.log.Warn().Err(err).Msg("discarding chunk with no open reply")
		}
		cb := s.onChunk
		s.mu.Unlock()
		if cb != nil {
			cb(f.Content)
		}

	case frameComplete:
		msg := s.thread.CloseStream()
		s.state = StateOpen
		cb := s.onComplete
		s.mu.Unlock()
		if cb != nil && msg != nil {
			cb(msg)
		}

	case frameError:
		// Whatever streamed so far stays in the thread as a partial.
		s.thread.CloseStream()
		s.teardownNowLocked()
		s.state = StateError
		cb := s.onError
		s.mu.Unlock()
		err := &api.Error{Kind: api.KindChannel, Code: f.Code, Message: f.Message}
		s.log.Warn().Str("code", f.Code).Str("message", f.Message).Msg("chat channel error frame")
		if cb != nil {
			cb(err)
		}

	default:
		s.log.Warn().Str("type", f.Type).Msg("ignoring unknown chat frame type")
		s.mu.Unlock()
	}
}

// readFailed records a reader-side failure unless the session already
// moved on (clean close or a newer Connect).
func (s *Session) readFailed(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateClosed || s.state == StateError {
		s.mu.Unlock()
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		s.teardownLocked(websocket.StatusNormalClosure, "")
		s.state = StateClosed
		s.mu.Unlock()
		return
	}
	s.thread.CloseStream()
	s.teardownNowLocked()
	s.state = StateError
	cb := s.onError
	s.mu.Unlock()

	s.log.Warn().Err(err).Msg("chat channel lost")
	if cb != nil {
		cb(&api.Error{Kind: api.KindChannel, Message: fmt.Sprintf("chat channel lost: %v", err)})
	}
}

// failIfCurrent moves the session to StateError if no newer Connect has
// superseded the given generation.
func (s *Session) failIfCurrent(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.log.Warn().Err(err).Msg("chat channel failed")
	s.teardownNowLocked()
	s.state = StateError
}

// teardownLocked releases the connection and reader with a close
// handshake. Clean-shutdown paths only: callers hold s.mu and set the
// successor state themselves.
func (s *Session) teardownLocked(code websocket.StatusCode, reason string) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		s.conn.Close(code, reason)
		s.conn = nil
	}
}

// teardownNowLocked drops the connection without a close handshake.
// Failure paths run on the reader goroutine, which cannot also wait for
// the peer's close echo; callbacks must fire immediately, not after a
// handshake timeout.
func (s *Session) teardownNowLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		s.conn.CloseNow()
		s.conn = nil
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
