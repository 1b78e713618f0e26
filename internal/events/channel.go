// Package events carries row-change events from the chat and notification
// services to the views subscribed to them.
package events

import (
	"context"
	"errors"
	"slices"

	"github.com/stanzahq/stanza/internal/models"
)

var (
	ErrNilHandler = errors.New("events: handler cannot be nil")
	ErrNilEvent   = errors.New("events: event cannot be nil")
	ErrClosed     = errors.New("events: channel is closed")
)

// EventHandler receives one matching event.
type EventHandler func(event *models.Event)

// Handle is a live subscription. Cancel may be called more than once. Once
// it returns no new delivery starts; one already running may finish.
type Handle interface {
	ID() string
	Cancel()
}

// Channel is the live update channel. A subscription sees its events one at
// a time, in publish order.
type Channel interface {
	Publish(ctx context.Context, event *models.Event) error
	Subscribe(filter Filter, handler EventHandler) (Handle, error)
	SubscriberCount() int
	// Close cancels every subscription and releases the transport.
	Close() error
}

// Repository is where a channel logs what it publishes.
type Repository interface {
	Append(ctx context.Context, event *models.Event) error
}

// Filter selects events. Empty fields match anything.
type Filter struct {
	EventTypes  []models.EventType
	EntityTypes []models.EntityType
	EntityID    string
	// ScopeID is a conversation id for messages, the recipient for
	// notifications.
	ScopeID string
}

// Matches reports whether event passes every set criterion.
func (f *Filter) Matches(event *models.Event) bool {
	switch {
	case event == nil:
		return false
	case len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, event.Type):
		return false
	case len(f.EntityTypes) > 0 && !slices.Contains(f.EntityTypes, event.EntityType):
		return false
	case f.EntityID != "" && f.EntityID != event.EntityID:
		return false
	case f.ScopeID != "" && f.ScopeID != event.ScopeID:
		return false
	}
	return true
}
