package relay

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/quantumflow/aichat/pkg/chat"
)

// Wire protocol: every frame is a JSON envelope {"type": ..., "payload": ...}.
// Event names mirror the browser client contract.
const (
	// client → server
	EventJoinConversation = "join-conversation"
	EventMessage          = "message"
	EventGenerateImage    = "generate-image"
	EventGetConversations = "get-conversations"

	// server → client
	EventConversationJoined = "conversation-joined"
	EventTyping             = "typing"
	EventImageGenerating    = "image-generating"
	EventImageGenerated     = "image-generated"
	EventError              = "error"
	EventConversationsList  = "conversations-list"
)

// Envelope frames a single relay event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

type MessagePayload struct {
	Message        string  `json:"message"`
	ConversationID string  `json:"conversationId"`
	Model          string  `json:"model,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
}

type GenerateImagePayload struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversationId"`
	Size           string `json:"size,omitempty"`
}

type ConversationJoinedPayload struct {
	ConversationID string         `json:"conversationId"`
	Messages       []chat.Message `json:"messages"`
}

type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type GeneratingPayload struct {
	IsGenerating bool `json:"isGenerating"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// encodeEvent frames a payload; the payload shapes above cannot fail to
// marshal, so encoding errors are logged and yield a nil frame that the pool
// ignores.
func encodeEvent(eventType string, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("component", "relay").Str("event", eventType).Msg("failed to encode event payload")
			return nil
		}
		raw = b
	}
	b, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		log.Error().Err(err).Str("component", "relay").Str("event", eventType).Msg("failed to encode event envelope")
		return nil
	}
	return b
}
