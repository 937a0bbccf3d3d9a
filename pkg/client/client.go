// Package client is a websocket client for the relay: it keeps a socket open
// and mirrors the room state (message list, typing and image-generation
// indicators, last error) the way the original browser hook did.
package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/quantumflow/aichat/pkg/chat"
	"github.com/quantumflow/aichat/pkg/relay"
)

// Client mirrors one conversation room.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu         sync.Mutex
	convID     string
	messages   []chat.Message
	typing     bool
	generating bool
	lastImage  *chat.Message
	lastErr    *relay.ErrorPayload
	summaries  []chat.Summary

	joinedCh chan struct{}
	updates  chan struct{}
	done     chan struct{}
}

// Dial connects to the relay's /ws endpoint (ws:// or wss:// URL) and starts
// the mirror loop.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial relay")
	}
	c := &Client{
		conn:     conn,
		joinedCh: make(chan struct{}),
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection. The mirror loop exits shortly after.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed when the mirror loop has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

// Joined is closed once the first conversation-joined event arrives.
func (c *Client) Joined() <-chan struct{} { return c.joinedCh }

// Updates signals whenever the mirrored state changes. The channel is
// coalescing: a pending signal covers any number of changes.
func (c *Client) Updates() <-chan struct{} { return c.updates }

func (c *Client) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Join binds the client to a conversation, creating one server-side when the
// ID is empty.
func (c *Client) Join(conversationID, userID string) error {
	return c.emit(relay.EventJoinConversation, relay.JoinPayload{
		ConversationID: conversationID,
		UserID:         userID,
	})
}

// SendMessage submits a user message to the joined conversation.
func (c *Client) SendMessage(text string) error {
	c.mu.Lock()
	convID := c.convID
	c.lastErr = nil
	c.mu.Unlock()
	if convID == "" {
		return errors.New("no conversation joined")
	}
	return c.emit(relay.EventMessage, relay.MessagePayload{
		Message:        text,
		ConversationID: convID,
	})
}

// GenerateImage requests an image for the joined conversation.
func (c *Client) GenerateImage(prompt, size string) error {
	c.mu.Lock()
	convID := c.convID
	c.lastErr = nil
	c.mu.Unlock()
	if convID == "" {
		return errors.New("no conversation joined")
	}
	return c.emit(relay.EventGenerateImage, relay.GenerateImagePayload{
		Prompt:         prompt,
		ConversationID: convID,
		Size:           size,
	})
}

// RequestConversations asks the relay for the active conversation list; the
// result lands in Summaries.
func (c *Client) RequestConversations() error {
	return c.emit(relay.EventGetConversations, nil)
}

// ConversationID returns the joined conversation's ID, empty before join.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convID
}

// Messages returns a copy of the mirrored message list.
func (c *Client) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// IsTyping reports the room-wide typing indicator.
func (c *Client) IsTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// IsGeneratingImage reports the image-generation indicator.
func (c *Client) IsGeneratingImage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// LastImage returns the most recent image-generated result, if any.
func (c *Client) LastImage() (chat.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastImage == nil {
		return chat.Message{}, false
	}
	return *c.lastImage, true
}

// LastError returns the most recent error event, if any.
func (c *Client) LastError() (relay.ErrorPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return relay.ErrorPayload{}, false
	}
	return *c.lastErr, true
}

// Summaries returns the last received conversations-list.
func (c *Client) Summaries() []chat.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Summary(nil), c.summaries...)
}

func (c *Client) emit(eventType string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encode payload")
		}
		raw = b
	}
	b, err := json.Marshal(relay.Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) readLoop() {
	defer close(c.done)
	joined := false
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("component", "client").Msg("read loop end")
			return
		}
		var env relay.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("component", "client").Msg("unreadable frame")
			continue
		}
		c.apply(env, &joined)
	}
}

func (c *Client) apply(env relay.Envelope, joined *bool) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	switch env.Type {
	case relay.EventConversationJoined:
		var p relay.ConversationJoinedPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.convID = p.ConversationID
		c.messages = p.Messages
		c.lastErr = nil
		if !*joined {
			*joined = true
			close(c.joinedCh)
		}
	case relay.EventMessage:
		var m chat.Message
		if json.Unmarshal(env.Payload, &m) != nil {
			return
		}
		c.messages = append(c.messages, m)
	case relay.EventTyping:
		var p relay.TypingPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.typing = p.IsTyping
	case relay.EventImageGenerating:
		var p relay.GeneratingPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.generating = p.IsGenerating
	case relay.EventImageGenerated:
		var m chat.Message
		if json.Unmarshal(env.Payload, &m) != nil {
			return
		}
		c.lastImage = &m
	case relay.EventError:
		var p relay.ErrorPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.lastErr = &p
	case relay.EventConversationsList:
		var list []chat.Summary
		if json.Unmarshal(env.Payload, &list) != nil {
			return
		}
		c.summaries = list
	}
}
