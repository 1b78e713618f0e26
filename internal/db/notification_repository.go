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

// Notification repository errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrSelfNotification     = errors.New("notification sender and recipient are the same user")
)

// NotificationRepository handles notification persistence.
type NotificationRepository struct {
	db  *DB
	now func() time.Time
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

const notificationColumns = `
	n.id, n.user_id, n.sender_id, n.poem_id, n.type, n.content, n.is_read, n.created_at,
	s.id, s.username, s.display_name, s.avatar_url,
	p.id, p.title
`

const notificationJoins = `
	FROM notifications n
	LEFT JOIN profiles s ON s.id = n.sender_id
	LEFT JOIN poems p ON p.id = n.poem_id
`

// Create inserts an unread notification and returns it with its sender and
// poem projections attached.
func (r *NotificationRepository) Create(ctx context.Context, input *models.NewNotification) (*models.Notification, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.IsSelf() {
		return nil, ErrSelfNotification
	}

	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, sender_id, poem_id, type, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`,
		id,
		input.RecipientID,
		nullString(input.SenderID),
		nullString(input.PoemID),
		string(input.Type),
		nullString(input.Content),
		formatTime(r.now()),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	return r.Get(ctx, id)
}

// Get retrieves a notification by id.
func (r *NotificationRepository) Get(ctx context.Context, id string) (*models.Notification, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+notificationJoins+`WHERE n.id = ?`, id)
	notification, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return notification, nil
}

// ListForRecipient returns the newest notifications for userID, newest first.
// A limit of 0 returns all of them.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + notificationJoins + `
		WHERE n.user_id = ?
		ORDER BY n.created_at DESC, n.rowid DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount counts userID's unread notifications.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead sets is_read on one notification. Marking an already read
// notification is a no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1 WHERE id = ? AND is_read = 0
	`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notification read: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get updated count: %w", err)
	}
	if count == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM notifications WHERE id = ?)
		`, id).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check notification: %w", err)
		}
		if exists == 0 {
			return 0, ErrNotificationNotFound
		}
	}
	return count, nil
}

// MarkAllRead sets is_read on every unread notification of userID.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get updated count: %w", err)
	}
	return count, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var notificationType, createdAt string
	var senderID, poemID, content sql.NullString
	var isRead int
	var sID, sUsername, sDisplayName, sAvatarURL sql.NullString
	var pID, pTitle sql.NullString

	if err := row.Scan(
		&n.ID, &n.RecipientID, &senderID, &poemID, &notificationType, &content, &isRead, &createdAt,
		&sID, &sUsername, &sDisplayName, &sAvatarURL,
		&pID, &pTitle,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification created_at: %w", err)
	}
	n.CreatedAt = t
	n.SenderID = senderID.String
	n.PoemID = poemID.String
	n.Content = content.String
	n.Type = models.NotificationType(notificationType)
	n.IsRead = isRead != 0

	if sID.Valid {
		n.Sender = &models.Profile{
			ID:          sID.String,
			Username:    sUsername.String,
			DisplayName: sDisplayName.String,
			AvatarURL:   sAvatarURL.String,
		}
	}
	if pID.Valid {
		n.Poem = &models.PoemRef{ID: pID.String, Title: pTitle.String}
	}
	return &n, nil
}
