package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stanzahq/stanza/internal/models"
)

// ErrPoemNotFound is returned when a poem row does not exist.
var ErrPoemNotFound = errors.New("poem not found")

// PoemRepository seeds and reads the poem projection used for notification context.
type PoemRepository struct {
	db *DB
}

// NewPoemRepository creates a new PoemRepository.
func NewPoemRepository(db *DB) *PoemRepository {
	return &PoemRepository{db: db}
}

// Upsert inserts a poem or updates the title of an existing one.
func (r *PoemRepository) Upsert(ctx context.Context, poem *models.Poem) error {
	if strings.TrimSpace(poem.ID) == "" || strings.TrimSpace(poem.AuthorID) == "" {
		return fmt.Errorf("poem id and author id are required")
	}
	if poem.CreatedAt.IsZero() {
		poem.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO poems (id, author_id, title, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title
	`, poem.ID, poem.AuthorID, poem.Title, formatTime(poem.CreatedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to upsert poem: %w", err)
	}
	return nil
}

// Get retrieves a poem by id.
func (r *PoemRepository) Get(ctx context.Context, id string) (*models.Poem, error) {
	var poem models.Poem
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, author_id, title, created_at FROM poems WHERE id = ?
	`, id).Scan(&poem.ID, &poem.AuthorID, &poem.Title, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPoemNotFound
		}
		return nil, fmt.Errorf("failed to get poem: %w", err)
	}
	if poem.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &poem, nil
}
