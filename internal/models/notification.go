package models

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType categorizes a notification.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationSystem  NotificationType = "system"
)

// NotificationTypes lists every valid notification type.
var NotificationTypes = []NotificationType{
	NotificationLike,
	NotificationComment,
	NotificationFollow,
	NotificationSystem,
}

// ParseNotificationType normalizes and validates a type name.
func ParseNotificationType(value string) (NotificationType, error) {
	candidate := NotificationType(strings.ToLower(strings.TrimSpace(value)))
	if !candidate.Valid() {
		return "", ErrInvalidNotificationType
	}
	return candidate, nil
}

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Notification informs a user of another user's action on their content.
type Notification struct {
	// ID is the unique identifier for the notification.
	ID string `json:"id"`

	// RecipientID is the user the notification is addressed to.
	RecipientID string `json:"user_id"`

	// SenderID is the acting user, empty for system notifications.
	SenderID string `json:"sender_id,omitempty"`

	// PoemID references the related poem, if any.
	PoemID string `json:"poem_id,omitempty"`

	// Type categorizes the notification.
	Type NotificationType `json:"type"`

	// Content is an optional snippet, such as the comment text.
	Content string `json:"content,omitempty"`

	// IsRead is set by the read-state operations.
	IsRead bool `json:"is_read"`

	// CreatedAt is when the notification was created.
	CreatedAt time.Time `json:"created_at"`

	// Sender is the sender's profile when it still exists.
	Sender *Profile `json:"sender,omitempty"`

	// Poem is the related poem projection when it still exists.
	Poem *PoemRef `json:"poem,omitempty"`
}

// NewNotification holds the inputs to notification creation.
type NewNotification struct {
	RecipientID string
	SenderID    string
	PoemID      string
	Type        NotificationType
	Content     string
}

// Validate checks required fields and the type enum.
func (n *NewNotification) Validate() error {
	validation := &ValidationErrors{}
	validation.RequireID("recipient_id", n.RecipientID, ErrInvalidUserID)
	validation.Check(n.Type.Valid(), "type", ErrInvalidNotificationType)
	return validation.Err()
}

// IsSelf reports whether the sender is also the recipient.
func (n *NewNotification) IsSelf() bool {
	return n.SenderID != "" && n.SenderID == n.RecipientID
}

// Describe renders the notification as one line of text. Missing sender or
// poem projections fall back to generic wording.
func (n *Notification) Describe() string {
	sender := "Someone"
	if name := n.Sender.Name(); name != "" {
		sender = name
	}
	poem := "a poem"
	if n.Poem != nil && strings.TrimSpace(n.Poem.Title) != "" {
		poem = fmt.Sprintf("%q", n.Poem.Title)
	}

	switch n.Type {
	case NotificationLike:
		return fmt.Sprintf("%s liked %s", sender, poem)
	case NotificationComment:
		if snippet := strings.TrimSpace(n.Content); snippet != "" {
			return fmt.Sprintf("%s commented on %s: %s", sender, poem, snippet)
		}
		return fmt.Sprintf("%s commented on %s", sender, poem)
	case NotificationFollow:
		return fmt.Sprintf("%s started following you", sender)
	default:
		if text := strings.TrimSpace(n.Content); text != "" {
			return text
		}
		return "You have a new notification"
	}
}
