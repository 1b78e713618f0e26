package models

import (
	"strings"
	"time"
)

// Message is one entry in a conversation's append-only log.
type Message struct {
	// ID is the unique identifier for the message.
	ID string `json:"id"`

	// Seq is the store-assigned insertion sequence; it breaks CreatedAt ties.
	Seq int64 `json:"seq"`

	// ConversationID is the owning conversation.
	ConversationID string `json:"conversation_id"`

	// SenderID is the participant that wrote the message.
	SenderID string `json:"sender_id"`

	// Content is the trimmed message text.
	Content string `json:"content"`

	// IsRead is set once the non-sender participant has viewed the message.
	IsRead bool `json:"is_read"`

	// CreatedAt is when the message was appended.
	CreatedAt time.Time `json:"created_at"`

	// Sender is the sender's profile, attached for rendering.
	Sender *Profile `json:"sender,omitempty"`
}

// NormalizeContent trims surrounding whitespace and rejects empty text.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	return trimmed, nil
}

// Validate checks required message fields.
func (m *Message) Validate() error {
	validation := &ValidationErrors{}
	validation.RequireID("conversation_id", m.ConversationID, ErrInvalidConversationID)
	validation.RequireID("sender_id", m.SenderID, ErrInvalidUserID)
	validation.RequireText("content", m.Content, ErrEmptyContent)
	return validation.Err()
}

// Before reports whether m sorts before other in conversation order.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	if m.Seq != other.Seq {
		return m.Seq < other.Seq
	}
	return m.ID < other.ID
}
