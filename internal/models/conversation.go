package models

import "time"

// Conversation is a durable two-party messaging thread.
type Conversation struct {
	// ID is the unique identifier for the conversation.
	ID string `json:"id"`

	// Participants holds the two participant user ids, sorted.
	Participants []string `json:"participants"`

	// CreatedAt is when the conversation was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the last-activity timestamp, bumped by each new message.
	UpdatedAt time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	if c == nil {
		return false
	}
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c == nil {
		return ""
	}
	for _, id := range c.Participants {
		if id != userID {
			return id
		}
	}
	return ""
}

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	Conversation

	// Other is the other participant's profile.
	Other *Profile `json:"other"`

	// LastMessage is the most recent message, if any.
	LastMessage *Message `json:"last_message,omitempty"`

	// UnreadCount counts messages from the other participant not yet read.
	UnreadCount int `json:"unread_count"`
}

// OrderPair returns the two ids in ascending order.
func OrderPair(userA, userB string) (string, string) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

// ValidatePair checks that two ids form a valid participant pair.
func ValidatePair(userA, userB string) error {
	validation := &ValidationErrors{}
	validation.RequireID("user_a", userA, ErrInvalidUserID)
	validation.RequireID("user_b", userB, ErrInvalidUserID)
	validation.RequireDistinct("user_b", userA, userB, ErrSelfConversation)
	return validation.Err()
}
