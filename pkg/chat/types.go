package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AnonymousUser is the owner recorded for conversations joined without a user ID.
const AnonymousUser = "anonymous"

// TypeImage tags messages that carry a generated image instead of text.
const TypeImage = "image"

// Usage carries the token counters reported by the completion provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is a single entry in a conversation. Text messages have a role and
// content; image messages are tagged with TypeImage and carry the prompt, a
// base64 data URI, and the requested size instead.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role,omitempty"`
	Type      string    `json:"type,omitempty"`
	Content   string    `json:"content,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Image     string    `json:"image,omitempty"`
	Size      string    `json:"size,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// IsImage reports whether the message is the image variant.
func (m Message) IsImage() bool { return m.Type == TypeImage }

// NewUserMessage builds a text message authored by the user.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage builds a text message produced by the gateway, with the
// provider-reported model and usage attached.
func NewAssistantMessage(content, model string, usage *Usage) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Model:     model,
		Usage:     usage,
	}
}

// NewImageMessage builds an image-variant message. The image is a data URI
// with a base64 payload.
func NewImageMessage(prompt, dataURI, size string) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      TypeImage,
		Prompt:    prompt,
		Image:     dataURI,
		Size:      size,
		Timestamp: time.Now(),
	}
}

// Conversation is an ordered, append-only sequence of messages shared by the
// clients joined to its room. It is owned by the session store; the relay
// mutates it only through store operations.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Summary is the lightweight listing shape returned for get-conversations.
type Summary struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Summarize reduces a conversation to its listing shape.
func (c *Conversation) Summarize() Summary {
	return Summary{
		ID:           c.ID,
		UserID:       c.UserID,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		LastActivity: c.LastActivity,
	}
}
