// Package notify implements the notification feed: creation with
// self-notification suppression, the recipient's list and unread count,
// read-state changes, and the polling view model built on them.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
)

// DefaultListLimit is how many notifications List returns.
const DefaultListLimit = 30

// Options configures a Service.
type Options struct {
	// ListLimit caps List results. Default: DefaultListLimit.
	ListLimit int

	// Live receives notification.created and notification.read events.
	// Nil disables publishing.
	Live events.Channel
}

// Service exposes the notification feed operations.
type Service struct {
	repo      *db.NotificationRepository
	listLimit int
	live      events.Channel
	logger    zerolog.Logger
}

// NewService creates a Service backed by database.
func NewService(database *db.DB, opts Options) *Service {
	if opts.ListLimit <= 0 {
		opts.ListLimit = DefaultListLimit
	}
	return &Service{
		repo:      db.NewNotificationRepository(database),
		listLimit: opts.ListLimit,
		live:      opts.Live,
		logger:    logging.Component("notify"),
	}
}

// Create records a notification for input.RecipientID. When the sender is
// the recipient nothing is stored and Create returns (nil, nil).
func (s *Service) Create(ctx context.Context, input models.NewNotification) (*models.Notification, error) {
	const op = "notify.Create"

	if err := input.Validate(); err != nil {
		return nil, models.E(op, models.ErrValidation, err)
	}
	if input.IsSelf() {
		s.logger.Debug().
			Str("user_id", input.RecipientID).
			Str("type", string(input.Type)).
			Msg("self notification suppressed")
		return nil, nil
	}

	notification, err := s.repo.Create(ctx, &input)
	if err != nil {
		return nil, classify(op, err)
	}

	logger := logging.WithUser(s.logger, notification.RecipientID)
	logger.Debug().
		Str("notification_id", notification.ID).
		Str("type", string(notification.Type)).
		Msg("notification created")

	if s.live != nil {
		event, err := models.NewNotificationEvent(notification)
		if err == nil {
			err = s.live.Publish(ctx, event)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("notification_id", notification.ID).Msg("failed to publish notification event")
		}
	}
	return notification, nil
}

// List returns the recipient's most recent notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID string) ([]*models.Notification, error) {
	const op = "notify.List"

	if err := requireUser(recipientID); err != nil {
		return nil, models.E(op, models.ErrValidation, err)
	}
	items, err := s.repo.ListForRecipient(ctx, recipientID, s.listLimit)
	if err != nil {
		return nil, classify(op, err)
	}
	if items == nil {
		items = []*models.Notification{}
	}
	return items, nil
}

// UnreadCount counts the recipient's unread notifications.
func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	const op = "notify.UnreadCount"

	if err := requireUser(recipientID); err != nil {
		return 0, models.E(op, models.ErrValidation, err)
	}
	count, err := s.repo.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, classify(op, err)
	}
	return count, nil
}

// MarkOneRead marks a single notification read. Repeating it is a no-op.
func (s *Service) MarkOneRead(ctx context.Context, notificationID string) error {
	const op = "notify.MarkOneRead"

	validation := &models.ValidationErrors{}
	validation.RequireID("notification_id", notificationID, models.ErrInvalidNotificationID)
	if err := validation.Err(); err != nil {
		return models.E(op, models.ErrValidation, err)
	}

	notification, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return classify(op, err)
	}
	count, err := s.repo.MarkRead(ctx, notificationID)
	if err != nil {
		return classify(op, err)
	}
	if count > 0 {
		s.publishRead(ctx, models.NotificationsReadPayload{
			RecipientID:    notification.RecipientID,
			NotificationID: notificationID,
			Count:          count,
		})
	}
	return nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) error {
	const op = "notify.MarkAllRead"

	if err := requireUser(recipientID); err != nil {
		return models.E(op, models.ErrValidation, err)
	}
	count, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return classify(op, err)
	}
	if count > 0 {
		logger := logging.WithUser(s.logger, recipientID)
		logger.Debug().Int64("count", count).Msg("notifications marked read")
		s.publishRead(ctx, models.NotificationsReadPayload{RecipientID: recipientID, Count: count})
	}
	return nil
}

func (s *Service) publishRead(ctx context.Context, payload models.NotificationsReadPayload) {
	if s.live == nil {
		return
	}
	event, err := models.NewNotificationsReadEvent(payload)
	if err == nil {
		err = s.live.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", payload.RecipientID).Msg("failed to publish notification read event")
	}
}

func requireUser(userID string) error {
	validation := &models.ValidationErrors{}
	validation.RequireID("recipient_id", userID, models.ErrInvalidUserID)
	return validation.Err()
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrValidation):
		return models.E(op, models.ErrValidation, err)
	case errors.Is(err, db.ErrNotificationNotFound),
		errors.Is(err, db.ErrProfileNotFound):
		return models.E(op, models.ErrNotFound, err)
	default:
		return models.E(op, models.ErrTransport, err)
	}
}
