// Package chat implements the conversation directory, message store and
// read-state tracker on top of the SQLite store, and publishes message
// changes on the live update channel.
package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
)

// Service exposes the conversation and message operations.
type Service struct {
	conversations *db.ConversationRepository
	messages      *db.MessageRepository
	profiles      *db.ProfileRepository
	live          events.Channel
	logger        zerolog.Logger
}

// NewService creates a Service. live may be nil, in which case nothing is
// published.
func NewService(database *db.DB, live events.Channel) *Service {
	return &Service{
		conversations: db.NewConversationRepository(database),
		messages:      db.NewMessageRepository(database),
		profiles:      db.NewProfileRepository(database),
		live:          live,
		logger:        logging.Component("chat"),
	}
}

// GetOrCreate returns the single conversation between userA and userB,
// creating it on first contact. Argument order does not matter.
func (s *Service) GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	const op = "chat.GetOrCreate"

	conversation, created, err := s.conversations.GetOrCreate(ctx, userA, userB)
	if err != nil {
		return nil, classify(op, err)
	}
	if created {
		s.logger.Debug().
			Str("conversation_id", conversation.ID).
			Strs("participants", conversation.Participants).
			Msg("conversation created")
	}
	return conversation, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	const op = "chat.ListForUser"

	if err := requireUser(userID); err != nil {
		return nil, models.E(op, models.ErrValidation, err)
	}
	summaries, err := s.conversations.ListSummaries(ctx, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	if summaries == nil {
		summaries = []*models.ConversationSummary{}
	}
	return summaries, nil
}

// Append adds a message from senderID to the conversation and publishes it.
// Append is not idempotent; callers must not retry it on an ambiguous failure.
func (s *Service) Append(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	const op = "chat.Append"

	validation := &models.ValidationErrors{}
	validation.RequireID("conversation_id", conversationID, models.ErrInvalidConversationID)
	validation.RequireID("sender_id", senderID, models.ErrInvalidUserID)
	text, err := models.NormalizeContent(content)
	if err != nil {
		validation.Add("content", err)
	}
	if err := validation.Err(); err != nil {
		return nil, models.E(op, models.ErrValidation, err)
	}

	if err := s.requireParticipant(ctx, op, conversationID, senderID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        text,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, classify(op, err)
	}

	if stored, err := s.messages.Get(ctx, msg.ID); err == nil {
		msg = stored
	} else {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to reload appended message")
	}

	s.publishMessage(ctx, msg)
	return msg, nil
}

// ListMessages returns the conversation's messages in creation order with
// sender profiles attached.
func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	return s.ListMessagesAfter(ctx, conversationID, 0)
}

// ListMessagesAfter returns messages inserted after the given sequence number.
func (s *Service) ListMessagesAfter(ctx context.Context, conversationID string, afterSeq int64) ([]*models.Message, error) {
	const op = "chat.ListMessages"

	if err := requireConversation(conversationID); err != nil {
		return nil, models.E(op, models.ErrValidation, err)
	}
	if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		return nil, classify(op, err)
	}

	messages, err := s.messages.List(ctx, conversationID, db.MessageQuery{AfterSeq: afterSeq})
	if err != nil {
		return nil, classify(op, err)
	}
	return messages, nil
}

// MarkRead marks every unread message in the conversation not sent by
// viewerID as read. Returns how many messages changed.
func (s *Service) MarkRead(ctx context.Context, conversationID, viewerID string) (int64, error) {
	const op = "chat.MarkRead"

	validation := &models.ValidationErrors{}
	validation.RequireID("conversation_id", conversationID, models.ErrInvalidConversationID)
	validation.RequireID("viewer_id", viewerID, models.ErrInvalidUserID)
	if err := validation.Err(); err != nil {
		return 0, models.E(op, models.ErrValidation, err)
	}

	if err := s.requireParticipant(ctx, op, conversationID, viewerID); err != nil {
		return 0, err
	}

	count, err := s.messages.MarkRead(ctx, conversationID, viewerID)
	if err != nil {
		return 0, classify(op, err)
	}
	if count > 0 {
		logger := logging.WithConversation(s.logger, conversationID)
		logger.Debug().
			Str("viewer_id", viewerID).
			Int64("count", count).
			Msg("messages marked read")
		s.publishRead(ctx, conversationID, viewerID, count)
	}
	return count, nil
}

// UnreadMessageCount counts unread messages addressed to userID across all
// of the user's conversations.
func (s *Service) UnreadMessageCount(ctx context.Context, userID string) (int, error) {
	const op = "chat.UnreadMessageCount"

	if err := requireUser(userID); err != nil {
		return 0, models.E(op, models.ErrValidation, err)
	}
	count, err := s.messages.UnreadCountForUser(ctx, userID)
	if err != nil {
		return 0, classify(op, err)
	}
	return count, nil
}

// GetProfile returns a user's public profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "chat.GetProfile"

	if err := requireUser(userID); err != nil {
		return nil, models.E(op, models.ErrValidation, err)
	}
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	return profile, nil
}

func (s *Service) requireParticipant(ctx context.Context, op, conversationID, userID string) error {
	conversation, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return classify(op, err)
	}
	if !conversation.HasParticipant(userID) {
		return models.E(op, models.ErrAuthorization, errors.New("user is not a participant of the conversation"))
	}
	return nil
}

// Publishing is best effort: the store is the source of truth and viewers
// refetch history when a session starts.
func (s *Service) publishMessage(ctx context.Context, msg *models.Message) {
	if s.live == nil {
		return
	}
	event, err := models.NewMessageEvent(msg)
	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to build message event")
		return
	}
	if err := s.live.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to publish message event")
	}
}

func (s *Service) publishRead(ctx context.Context, conversationID, viewerID string, count int64) {
	if s.live == nil {
		return
	}
	event, err := models.NewMessagesReadEvent(models.MessageReadPayload{
		ConversationID: conversationID,
		ViewerID:       viewerID,
		Count:          count,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to build read event")
		return
	}
	if err := s.live.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to publish read event")
	}
}

func requireUser(userID string) error {
	validation := &models.ValidationErrors{}
	validation.RequireID("user_id", userID, models.ErrInvalidUserID)
	return validation.Err()
}

func requireConversation(conversationID string) error {
	validation := &models.ValidationErrors{}
	validation.RequireID("conversation_id", conversationID, models.ErrInvalidConversationID)
	return validation.Err()
}

// classify maps store errors onto the error kinds.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrValidation):
		return models.E(op, models.ErrValidation, err)
	case errors.Is(err, db.ErrConversationNotFound),
		errors.Is(err, db.ErrProfileNotFound),
		errors.Is(err, db.ErrMessageNotFound):
		return models.E(op, models.ErrNotFound, err)
	case errors.Is(err, db.ErrConversationConflict):
		return models.E(op, models.ErrConflict, err)
	default:
		return models.E(op, models.ErrTransport, err)
	}
}
