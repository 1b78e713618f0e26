package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stanzahq/stanza/internal/models"
)

// Message repository errors.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidMessage  = errors.New("invalid message")
)

// MessageRepository handles the per-conversation message log.
type MessageRepository struct {
	db  *DB
	now func() time.Time
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// MessageQuery filters a conversation's messages. The zero value returns
// the whole conversation.
type MessageQuery struct {
	// AfterSeq returns only messages inserted after this sequence number.
	AfterSeq int64

	// Limit caps the number of messages returned (0 = no limit).
	Limit int
}

const messageColumns = `
	m.seq, m.id, m.conversation_id, m.sender_id, m.content, m.is_read, m.created_at,
	s.id, s.username, s.display_name, s.avatar_url, s.created_at
`

// Append inserts msg with is_read = false and bumps the conversation's
// activity timestamp. CreatedAt is never earlier than the conversation's
// previous message, so timestamp order matches insertion order.
func (r *MessageRepository) Append(ctx context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}

	var seq int64
	var createdAt time.Time

	err := r.db.WriteTx(ctx, func(tx *sql.Tx) error {
		createdAt = r.now()

		var last sql.NullString
		if err := tx.QueryRowContext(ctx, `
			SELECT MAX(created_at) FROM messages WHERE conversation_id = ?
		`, msg.ConversationID).Scan(&last); err != nil {
			return fmt.Errorf("failed to read latest message time: %w", err)
		}
		if last.Valid {
			if latest, err := parseTime(last.String); err == nil && createdAt.Before(latest) {
				createdAt = latest
			}
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, is_read, created_at)
			VALUES (?, ?, ?, ?, 0, ?)
		`, id, msg.ConversationID, msg.SenderID, msg.Content, formatTime(createdAt))
		if err != nil {
			if isForeignKeyError(err) {
				return ErrConversationNotFound
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}

		seq, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message sequence: %w", err)
		}

		return touchConversation(ctx, tx, msg.ConversationID, createdAt)
	})
	if err != nil {
		return err
	}

	msg.ID = id
	msg.Seq = seq
	msg.IsRead = false
	msg.CreatedAt = createdAt
	return nil
}

// Get retrieves a message with its sender profile.
func (r *MessageRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN profiles s ON s.id = m.sender_id
		WHERE m.id = ?
	`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// List returns a conversation's messages in ascending (created_at, seq) order.
func (r *MessageRepository) List(ctx context.Context, conversationID string, q MessageQuery) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN profiles s ON s.id = m.sender_id
		WHERE m.conversation_id = ?`
	args := []any{conversationID}

	if q.AfterSeq > 0 {
		query += ` AND m.seq > ?`
		args = append(args, q.AfterSeq)
	}
	query += ` ORDER BY m.created_at, m.seq`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// MarkRead flips every unread message in the conversation not sent by
// viewerID to read. Returns the number of messages changed.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, viewerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND is_read = 0 AND sender_id <> ?
	`, conversationID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get updated count: %w", err)
	}
	return count, nil
}

// UnreadCountForUser counts unread messages addressed to userID across all
// of the user's conversations.
func (r *MessageRepository) UnreadCountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p
			ON p.conversation_id = m.conversation_id AND p.profile_id = ?
		WHERE m.is_read = 0 AND m.sender_id <> ?
	`, userID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var isRead int
	var createdAt string
	var senderID, senderUsername, senderDisplayName, senderAvatarURL, senderCreatedAt sql.NullString

	if err := row.Scan(
		&msg.Seq, &msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &isRead, &createdAt,
		&senderID, &senderUsername, &senderDisplayName, &senderAvatarURL, &senderCreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.IsRead = isRead != 0
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message created_at: %w", err)
	}
	msg.CreatedAt = parsed

	if senderID.Valid {
		sender := &models.Profile{
			ID:          senderID.String,
			Username:    senderUsername.String,
			DisplayName: senderDisplayName.String,
			AvatarURL:   senderAvatarURL.String,
		}
		if t, err := parseTime(senderCreatedAt.String); err == nil {
			sender.CreatedAt = t
		}
		msg.Sender = sender
	}

	return &msg, nil
}
