package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stanzahq/stanza/internal/models"
)

// Event log errors.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
)

const defaultEventPageSize = 100

// EventRepository stores the live update log. Views in other processes
// follow it to see events they were not subscribed for.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventQuery narrows a log read. Nil fields match everything.
type EventQuery struct {
	Type       *models.EventType
	EntityType *models.EntityType
	ScopeID    *string    // conversation id or notification recipient
	Since      *time.Time // inclusive
	Cursor     string     // id of the last event already seen
	Limit      int
}

// EventPage is one slice of a log read. NextCursor is empty on the last page.
type EventPage struct {
	Events     []*models.Event
	NextCursor string
}

// Append writes event to the log. A missing id or timestamp is filled in.
func (r *EventRepository) Append(ctx context.Context, event *models.Event) error {
	switch {
	case event.Type == "", event.EntityType == "", event.EntityID == "":
		return ErrInvalidEvent
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload := sql.NullString{}
	if len(event.Payload) > 0 {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, type, entity_type, entity_id, scope_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, formatTime(event.Timestamp), string(event.Type), string(event.EntityType),
		event.EntityID, nullString(event.ScopeID), payload); err != nil {
		return fmt.Errorf("append event %s: %w", event.Type, err)
	}
	return nil
}

// Get returns the logged event with the given id.
func (r *EventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := readEvent(r.db.QueryRowContext(ctx, selectEvents+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return event, err
}

// Query reads events in the order they were appended. A cursor page never
// skips an event appended after it, whatever its timestamp.
func (r *EventRepository) Query(ctx context.Context, q EventQuery) (*EventPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultEventPageSize
	}

	where, args := q.conditions()
	sqlText := selectEvents
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY seq LIMIT ?"
	// One extra row tells whether another page exists.
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	page := &EventPage{}
	for rows.Next() {
		event, err := readEvent(rows)
		if err != nil {
			return nil, err
		}
		page.Events = append(page.Events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	if len(page.Events) > limit {
		page.Events = page.Events[:limit]
		page.NextCursor = page.Events[limit-1].ID
	}
	return page, nil
}

// LatestID returns the id of the last appended event, or "" for an empty log.
func (r *EventRepository) LatestID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM events ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest event: %w", err)
	}
	return id, nil
}

// DeleteOlderThan drops log entries stamped before the cutoff and reports how
// many went.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return result.RowsAffected()
}

const selectEvents = `SELECT id, timestamp, type, entity_type, entity_id, scope_id, payload_json FROM events`

func (q EventQuery) conditions() ([]string, []any) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}

	if q.Type != nil {
		add("type = ?", string(*q.Type))
	}
	if q.EntityType != nil {
		add("entity_type = ?", string(*q.EntityType))
	}
	if q.ScopeID != nil {
		add("scope_id = ?", *q.ScopeID)
	}
	if q.Since != nil {
		add("timestamp >= ?", formatTime(*q.Since))
	}
	if q.Cursor != "" {
		add("seq > (SELECT seq FROM events WHERE id = ?)", q.Cursor)
	}
	return where, args
}

func readEvent(row rowScanner) (*models.Event, error) {
	var (
		event               models.Event
		stamp, kind, entity string
		scope, payload      sql.NullString
	)
	if err := row.Scan(&event.ID, &stamp, &kind, &entity, &event.EntityID, &scope, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("read event: %w", err)
	}

	at, err := parseTime(stamp)
	if err != nil {
		return nil, err
	}
	event.Timestamp = at
	event.Type = models.EventType(kind)
	event.EntityType = models.EntityType(entity)
	event.ScopeID = scope.String
	if payload.Valid {
		event.Payload = json.RawMessage(payload.String)
	}
	return &event, nil
}
