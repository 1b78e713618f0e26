package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType categorizes live update events.
type EventType string

const (
	EventTypeMessageInserted     EventType = "message.inserted"
	EventTypeMessagesRead        EventType = "message.read"
	EventTypeNotificationCreated EventType = "notification.created"
	EventTypeNotificationsRead   EventType = "notification.read"
)

// EntityType identifies the table an event relates to.
type EntityType string

const (
	EntityTypeMessage      EntityType = "messages"
	EntityTypeNotification EntityType = "notifications"
)

// Event is a row-change notification delivered over the live update channel.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies the table the changed row belongs to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the id of the changed row.
	EntityID string `json:"entity_id"`

	// ScopeID is the conversation id for message events and the
	// recipient id for notification events.
	ScopeID string `json:"scope_id,omitempty"`

	// Payload contains the new row.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageReadPayload is the payload for message.read events.
type MessageReadPayload struct {
	ConversationID string `json:"conversation_id"`
	ViewerID       string `json:"viewer_id"`
	Count          int64  `json:"count"`
}

// NotificationsReadPayload is the payload for notification.read events.
type NotificationsReadPayload struct {
	RecipientID    string `json:"recipient_id"`
	NotificationID string `json:"notification_id,omitempty"`
	Count          int64  `json:"count"`
}

// NewMessageEvent builds a message.inserted event carrying msg.
func NewMessageEvent(msg *Message) (*Event, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return &Event{
		Timestamp:  msg.CreatedAt,
		Type:       EventTypeMessageInserted,
		EntityType: EntityTypeMessage,
		EntityID:   msg.ID,
		ScopeID:    msg.ConversationID,
		Payload:    payload,
	}, nil
}

// NewNotificationEvent builds a notification.created event carrying n.
func NewNotificationEvent(n *Notification) (*Event, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return &Event{
		Timestamp:  n.CreatedAt,
		Type:       EventTypeNotificationCreated,
		EntityType: EntityTypeNotification,
		EntityID:   n.ID,
		ScopeID:    n.RecipientID,
		Payload:    payload,
	}, nil
}

// Message decodes the payload of a message.inserted event.
func (e *Event) Message() (*Message, error) {
	if e.Type != EventTypeMessageInserted {
		return nil, fmt.Errorf("event %s does not carry a message", e.Type)
	}
	var msg Message
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message payload: %w", err)
	}
	return &msg, nil
}

// Notification decodes the payload of a notification.created event.
func (e *Event) Notification() (*Notification, error) {
	if e.Type != EventTypeNotificationCreated {
		return nil, fmt.Errorf("event %s does not carry a notification", e.Type)
	}
	var n Notification
	if err := json.Unmarshal(e.Payload, &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification payload: %w", err)
	}
	return &n, nil
}

// NewMessagesReadEvent builds a message.read event for a conversation.
func NewMessagesReadEvent(p MessageReadPayload) (*Event, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal read payload: %w", err)
	}
	return &Event{
		Type:       EventTypeMessagesRead,
		EntityType: EntityTypeMessage,
		EntityID:   p.ConversationID,
		ScopeID:    p.ConversationID,
		Payload:    payload,
	}, nil
}

// NewNotificationsReadEvent builds a notification.read event for a recipient.
func NewNotificationsReadEvent(p NotificationsReadPayload) (*Event, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal read payload: %w", err)
	}
	entityID := p.NotificationID
	if entityID == "" {
		entityID = p.RecipientID
	}
	return &Event{
		Type:       EventTypeNotificationsRead,
		EntityType: EntityTypeNotification,
		EntityID:   entityID,
		ScopeID:    p.RecipientID,
		Payload:    payload,
	}, nil
}

// MessagesRead decodes the payload of a message.read event.
func (e *Event) MessagesRead() (*MessageReadPayload, error) {
	if e.Type != EventTypeMessagesRead {
		return nil, fmt.Errorf("event %s does not carry a read receipt", e.Type)
	}
	var p MessageReadPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode read payload: %w", err)
	}
	return &p, nil
}
