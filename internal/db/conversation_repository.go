package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stanzahq/stanza/internal/models"
)

// Conversation repository errors.
var (
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationConflict means the pair lookup after insert-or-ignore
	// found no row. The unique
	// (user_low, user_high) constraint makes this unreachable.
	ErrConversationConflict = errors.New("conversation pair lookup failed after insert")
)

// ConversationRepository handles conversation and participant persistence.
type ConversationRepository struct {
	db  *DB
	now func() time.Time
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the conversation for the unordered pair {userA, userB},
// creating it with both participant rows if it does not exist. The bool
// reports whether this call created it.
//
// Concurrent callers converge on one row: the insert is ON CONFLICT DO NOTHING
// against the unique (user_low, user_high) pair, and the row is read back in
// the same transaction.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	if err := models.ValidatePair(userA, userB); err != nil {
		return nil, false, err
	}

	first, second := models.OrderPair(userA, userB)

	var conversation *models.Conversation
	var created bool

	err := r.db.WriteTx(ctx, func(tx *sql.Tx) error {
		conversation = nil
		created = false

		now := formatTime(r.now())
		result, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, user_low, user_high, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_low, user_high) DO NOTHING
		`, uuid.New().String(), first, second, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get inserted count: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			SELECT id, created_at, updated_at FROM conversations
			WHERE user_low = ? AND user_high = ?
		`, first, second)
		conv, err := scanConversationHead(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrConversationConflict
			}
			return err
		}
		conv.Participants = []string{first, second}

		if inserted == 1 {
			for _, userID := range conv.Participants {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO conversation_participants (conversation_id, profile_id)
					VALUES (?, ?)
				`, conv.ID, userID); err != nil {
					if isForeignKeyError(err) {
						return ErrProfileNotFound
					}
					return fmt.Errorf("failed to insert participant: %w", err)
				}
			}
			created = true
		}

		conversation = conv
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return conversation, created, nil
}

// Get retrieves a conversation and its participants.
func (r *ConversationRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.created_at, c.updated_at, group_concat(p.profile_id)
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE c.id = ?
		GROUP BY c.id
	`, id)

	var conversation models.Conversation
	var createdAt, updatedAt string
	var participants sql.NullString
	if err := row.Scan(&conversation.ID, &createdAt, &updatedAt, &participants); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := populateConversationTimes(&conversation, createdAt, updatedAt); err != nil {
		return nil, err
	}
	if participants.Valid {
		conversation.Participants = strings.Split(participants.String, ",")
		sort.Strings(conversation.Participants)
	}
	return &conversation, nil
}

// IsParticipant reports whether userID participates in the conversation.
func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = ? AND profile_id = ?
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return exists == 1, nil
}

// ListSummaries returns every conversation userID participates in, with the
// other participant's profile, the latest message, and userID's unread count,
// most recently active first.
func (r *ConversationRepository) ListSummaries(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			c.id, c.created_at, c.updated_at,
			o.id, o.username, o.display_name, o.avatar_url, o.created_at,
			lm.id, lm.seq, lm.sender_id, lm.content, lm.is_read, lm.created_at,
			(
				SELECT COUNT(*) FROM messages um
				WHERE um.conversation_id = c.id AND um.is_read = 0 AND um.sender_id <> me.profile_id
			) AS unread_count
		FROM conversation_participants me
		JOIN conversations c ON c.id = me.conversation_id
		JOIN conversation_participants op
			ON op.conversation_id = c.id AND op.profile_id <> me.profile_id
		JOIN profiles o ON o.id = op.profile_id
		LEFT JOIN messages lm ON lm.seq = (
			SELECT m.seq FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC, m.seq DESC
			LIMIT 1
		)
		WHERE me.profile_id = ?
		ORDER BY c.updated_at DESC, c.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*models.ConversationSummary
	for rows.Next() {
		summary, err := scanSummary(rows, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return summaries, nil
}

// touchConversation moves the last-activity timestamp forward to at.
func touchConversation(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	stamp := formatTime(at)
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ? AND updated_at < ?
	`, stamp, id, stamp); err != nil {
		return fmt.Errorf("failed to update conversation activity: %w", err)
	}
	return nil
}

func scanConversationHead(row rowScanner) (*models.Conversation, error) {
	var conversation models.Conversation
	var createdAt, updatedAt string
	if err := row.Scan(&conversation.ID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	if err := populateConversationTimes(&conversation, createdAt, updatedAt); err != nil {
		return nil, err
	}
	return &conversation, nil
}

func scanSummary(rows *sql.Rows, userID string) (*models.ConversationSummary, error) {
	var summary models.ConversationSummary
	var other models.Profile
	var createdAt, updatedAt, otherCreatedAt string
	var otherDisplayName, otherAvatarURL sql.NullString
	var lastID, lastSender, lastContent, lastCreatedAt sql.NullString
	var lastSeq, lastIsRead sql.NullInt64

	if err := rows.Scan(
		&summary.ID, &createdAt, &updatedAt,
		&other.ID, &other.Username, &otherDisplayName, &otherAvatarURL, &otherCreatedAt,
		&lastID, &lastSeq, &lastSender, &lastContent, &lastIsRead, &lastCreatedAt,
		&summary.UnreadCount,
	); err != nil {
		return nil, fmt.Errorf("failed to scan conversation summary: %w", err)
	}

	if err := populateConversationTimes(&summary.Conversation, createdAt, updatedAt); err != nil {
		return nil, err
	}

	other.DisplayName = otherDisplayName.String
	other.AvatarURL = otherAvatarURL.String
	if t, err := parseTime(otherCreatedAt); err == nil {
		other.CreatedAt = t
	}
	summary.Other = &other

	first, second := models.OrderPair(userID, other.ID)
	summary.Participants = []string{first, second}

	if lastID.Valid {
		last := &models.Message{
			ID:             lastID.String,
			Seq:            lastSeq.Int64,
			ConversationID: summary.ID,
			SenderID:       lastSender.String,
			Content:        lastContent.String,
			IsRead:         lastIsRead.Int64 != 0,
		}
		t, err := parseTime(lastCreatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last message created_at: %w", err)
		}
		last.CreatedAt = t
		if last.SenderID == other.ID {
			last.Sender = &other
		}
		summary.LastMessage = last
	}

	return &summary, nil
}

func populateConversationTimes(conversation *models.Conversation, createdAt, updatedAt string) error {
	created, err := parseTime(createdAt)
	if err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return fmt.Errorf("failed to parse updated_at: %w", err)
	}
	conversation.CreatedAt = created
	conversation.UpdatedAt = updated
	return nil
}
