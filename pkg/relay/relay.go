// Package relay binds websocket connections to conversation rooms, forwards
// user messages to the AI gateway, and fans assistant replies out to every
// socket in the room.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantumflow/aichat/pkg/chat"
	"github.com/quantumflow/aichat/pkg/gateway"
	"github.com/quantumflow/aichat/pkg/store"
)

// DefaultIdleWindow is how long a conversation may sit untouched before the
// disconnect-time sweep removes it.
const DefaultIdleWindow = time.Hour

// Options tune a relay instance.
type Options struct {
	// IdleWindow overrides DefaultIdleWindow when positive.
	IdleWindow time.Duration
}

// Relay is the websocket layer over the session store and gateway. It is
// constructed once per server and shared by all connections.
type Relay struct {
	baseCtx    context.Context
	store      *store.Store
	gw         gateway.Client
	idleWindow time.Duration
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	rooms   map[string]*room
	locks   map[string]*sync.Mutex
	clients int
}

func New(ctx context.Context, st *store.Store, gw gateway.Client, opts Options) *Relay {
	idle := opts.IdleWindow
	if idle <= 0 {
		idle = DefaultIdleWindow
	}
	return &Relay{
		baseCtx:    ctx,
		store:      st,
		gw:         gw,
		idleWindow: idle,
		upgrader: websocket.Upgrader{
			// The original service ran with a wildcard CORS policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: map[string]*room{},
		locks: map[string]*sync.Mutex{},
	}
}

// IdleWindow returns the configured idle window, for callers that run the
// periodic sweep.
func (r *Relay) IdleWindow() time.Duration { return r.idleWindow }

// ConnectedClients returns the number of currently connected sockets.
func (r *Relay) ConnectedClients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients
}

// Handler upgrades the request and serves the connection until it closes.
func (r *Relay) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.serve(conn)
	}
}

func (r *Relay) serve(conn *websocket.Conn) {
	s := newSession(conn)
	wsLog := log.With().Str("component", "relay").Str("remote", conn.RemoteAddr().String()).Logger()
	wsLog.Info().Msg("client connected")

	r.mu.Lock()
	r.clients++
	r.mu.Unlock()

	defer r.finish(s, wsLog)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			wsLog.Debug().Err(err).Msg("ws read loop end")
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendEvent(EventError, ErrorPayload{Message: "Invalid event", Details: err.Error()})
			continue
		}
		r.dispatch(s, env)
	}
}

func (r *Relay) dispatch(s *session, env Envelope) {
	switch env.Type {
	case EventJoinConversation:
		var p JoinPayload
		if !decodePayload(s, env, &p) {
			return
		}
		r.handleJoin(s, p)
	case EventMessage:
		var p MessagePayload
		if !decodePayload(s, env, &p) {
			return
		}
		r.handleMessage(s, p)
	case EventGenerateImage:
		var p GenerateImagePayload
		if !decodePayload(s, env, &p) {
			return
		}
		r.handleGenerateImage(s, p)
	case EventGetConversations:
		s.sendEvent(EventConversationsList, r.store.Summaries())
	default:
		s.sendEvent(EventError, ErrorPayload{Message: "Unknown event", Details: env.Type})
	}
}

func decodePayload(s *session, env Envelope, out any) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		s.sendEvent(EventError, ErrorPayload{Message: "Invalid payload", Details: err.Error()})
		return false
	}
	return true
}

func (r *Relay) handleJoin(s *session, p JoinPayload) {
	conv := r.store.GetOrCreate(p.ConversationID, p.UserID)

	if s.convID != "" && s.convID != conv.ID {
		if old := r.lookupRoom(s.convID); old != nil {
			old.remove(s)
		}
	}
	if err := s.join(conv.ID, conv.UserID); err != nil {
		s.sendEvent(EventError, ErrorPayload{Message: "Cannot join conversation", Details: err.Error()})
		return
	}
	r.getRoom(conv.ID).add(s)

	history, _ := r.store.History(conv.ID)
	s.sendEvent(EventConversationJoined, ConversationJoinedPayload{
		ConversationID: conv.ID,
		Messages:       history,
	})
	log.Info().Str("component", "relay").Str("conv_id", conv.ID).Str("user_id", conv.UserID).Msg("joined conversation")
}

// handleMessage appends the user message, broadcasts it, and runs one gateway
// completion for the room. The per-conversation lock is held across the whole
// exchange so concurrent sends to one conversation resolve in submission
// order.
func (r *Relay) handleMessage(s *session, p MessagePayload) {
	if !s.joined() {
		s.sendEvent(EventError, ErrorPayload{Message: "Join a conversation first"})
		return
	}
	if p.Message == "" {
		s.sendEvent(EventError, ErrorPayload{Message: "Message is required"})
		return
	}
	convID := p.ConversationID
	if convID == "" {
		convID = s.convID
	}

	lock := r.convLock(convID)
	lock.Lock()
	defer lock.Unlock()

	userMsg := chat.NewUserMessage(p.Message)
	if err := r.store.Append(convID, userMsg); err != nil {
		s.sendEvent(EventError, ErrorPayload{Message: "Conversation not found"})
		return
	}
	rm := r.getRoom(convID)
	rm.broadcast(encodeEvent(EventMessage, userMsg))
	rm.broadcast(encodeEvent(EventTyping, TypingPayload{IsTyping: true}))

	history, _ := r.store.History(convID)
	reply, err := r.gw.Complete(r.baseCtx, history, gateway.CompleteOptions{
		Model:       p.Model,
		Temperature: p.Temperature,
	})
	if err != nil {
		log.Error().Err(err).Str("component", "relay").Str("conv_id", convID).Msg("completion failed")
		rm.broadcast(encodeEvent(EventTyping, TypingPayload{IsTyping: false}))
		s.sendEvent(EventError, ErrorPayload{Message: "Failed to generate AI response", Details: err.Error()})
		return
	}

	if err := r.store.Append(convID, reply); err != nil {
		rm.broadcast(encodeEvent(EventTyping, TypingPayload{IsTyping: false}))
		s.sendEvent(EventError, ErrorPayload{Message: "Conversation not found"})
		return
	}
	rm.broadcast(encodeEvent(EventMessage, reply))
	rm.broadcast(encodeEvent(EventTyping, TypingPayload{IsTyping: false}))
}

func (r *Relay) handleGenerateImage(s *session, p GenerateImagePayload) {
	if !s.joined() {
		s.sendEvent(EventError, ErrorPayload{Message: "Join a conversation first"})
		return
	}
	if p.Prompt == "" {
		s.sendEvent(EventError, ErrorPayload{Message: "Prompt is required"})
		return
	}
	convID := p.ConversationID
	if convID == "" {
		convID = s.convID
	}

	lock := r.convLock(convID)
	lock.Lock()
	defer lock.Unlock()

	s.sendEvent(EventImageGenerating, GeneratingPayload{IsGenerating: true})

	img, err := r.gw.GenerateImage(r.baseCtx, p.Prompt, p.Size)
	if err != nil {
		log.Error().Err(err).Str("component", "relay").Str("conv_id", convID).Msg("image generation failed")
		s.sendEvent(EventImageGenerating, GeneratingPayload{IsGenerating: false})
		s.sendEvent(EventError, ErrorPayload{Message: "Failed to generate image", Details: err.Error()})
		return
	}

	if err := r.store.Append(convID, img); err != nil {
		s.sendEvent(EventImageGenerating, GeneratingPayload{IsGenerating: false})
		s.sendEvent(EventError, ErrorPayload{Message: "Conversation not found"})
		return
	}
	s.sendEvent(EventImageGenerating, GeneratingPayload{IsGenerating: false})
	s.sendEvent(EventImageGenerated, img)
	r.getRoom(convID).broadcast(encodeEvent(EventMessage, img))
}

// finish runs when a connection's read loop ends: the socket leaves its room
// and the store is opportunistically swept for idle conversations.
func (r *Relay) finish(s *session, wsLog zerolog.Logger) {
	s.disconnect()
	_ = s.conn.Close()

	r.mu.Lock()
	r.clients--
	if s.convID != "" {
		if rm, ok := r.rooms[s.convID]; ok {
			rm.remove(s)
		}
	}
	r.mu.Unlock()

	removed := r.store.SweepIdle(r.idleWindow)
	r.prune()
	wsLog.Info().Int("swept", removed).Msg("client disconnected")
}

// prune drops rooms and locks for conversations that no longer exist and have
// no remaining members.
func (r *Relay) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rm := range r.rooms {
		if rm.count() > 0 {
			continue
		}
		if _, ok := r.store.Get(id); ok {
			continue
		}
		delete(r.rooms, id)
		delete(r.locks, id)
	}
}

func (r *Relay) getRoom(convID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[convID]
	if !ok {
		rm = newRoom(convID)
		r.rooms[convID] = rm
	}
	return rm
}

func (r *Relay) lookupRoom(convID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[convID]
}

func (r *Relay) convLock(convID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[convID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[convID] = l
	}
	return l
}
