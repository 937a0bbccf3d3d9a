// Package store holds the process-local table of active conversations. The
// store is constructed explicitly and handed to the relay and HTTP handlers;
// it has no package-level state so tests can run against isolated instances.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/quantumflow/aichat/pkg/chat"
)

// ErrNotFound is returned when an operation references a conversation that is
// not in the store.
var ErrNotFound = errors.New("conversation not found")

// Store maps conversation IDs to live conversations. All methods are safe for
// concurrent use.
type Store struct {
	mu    sync.Mutex
	convs map[string]*chat.Conversation
}

func New() *Store {
	return &Store{convs: map[string]*chat.Conversation{}}
}

// GetOrCreate returns the conversation with the given ID, creating an empty
// one when no match exists. An empty ID allocates a fresh UUID; an empty user
// falls back to the anonymous owner. It never fails.
func (s *Store) GetOrCreate(conversationID, userID string) *chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversationID = strings.TrimSpace(conversationID)
	if conversationID != "" {
		if conv, ok := s.convs[conversationID]; ok {
			return conv
		}
	} else {
		conversationID = uuid.NewString()
	}
	if strings.TrimSpace(userID) == "" {
		userID = chat.AnonymousUser
	}
	now := time.Now()
	conv := &chat.Conversation{
		ID:           conversationID,
		UserID:       userID,
		Messages:     []chat.Message{},
		CreatedAt:    now,
		LastActivity: now,
	}
	s.convs[conversationID] = conv
	return conv
}

// Get returns the conversation for the given ID without creating it.
func (s *Store) Get(conversationID string) (*chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	return conv, ok
}

// Append adds a message to the conversation and refreshes its last-activity
// timestamp. The caller is responsible for broadcasting; the store does not
// notify observers.
func (s *Store) Append(conversationID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return errors.Wrap(ErrNotFound, conversationID)
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastActivity = time.Now()
	return nil
}

// History returns a copy of the conversation's message sequence.
func (s *Store) History(conversationID string) ([]chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, false
	}
	out := make([]chat.Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out, true
}

// SweepIdle removes every conversation whose last activity is at least maxIdle
// in the past and returns the number removed. It is called opportunistically
// on disconnect and from the server's eviction ticker; there is no per-store
// timer.
func (s *Store) SweepIdle(maxIdle time.Duration) int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, conv := range s.convs {
		if now.Sub(conv.LastActivity) >= maxIdle {
			delete(s.convs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of active conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// Summaries lists every active conversation in its listing shape.
func (s *Store) Summaries() []chat.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Summary, 0, len(s.convs))
	for _, conv := range s.convs {
		out = append(out, conv.Summarize())
	}
	return out
}

// Stats describes the store contents for the informational endpoints.
type Stats struct {
	Conversations  int       `json:"conversations"`
	Messages       int       `json:"messages"`
	OldestActivity time.Time `json:"oldestActivity,omitzero"`
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Conversations: len(s.convs)}
	for _, conv := range s.convs {
		st.Messages += len(conv.Messages)
		if st.OldestActivity.IsZero() || conv.LastActivity.Before(st.OldestActivity) {
			st.OldestActivity = conv.LastActivity
		}
	}
	return st
}
