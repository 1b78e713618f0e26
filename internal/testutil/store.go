package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/models"
)

// StoreEnv is a migrated in-memory store with a local live channel.
type StoreEnv struct {
	DB        *db.DB
	Publisher *events.InMemoryPublisher
	Profiles  *db.ProfileRepository
	Poems     *db.PoemRepository
	t         *testing.T
}

// NewStoreEnv opens the store and registers cleanup with t.
func NewStoreEnv(t *testing.T) *StoreEnv {
	t.Helper()

	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := database.MigrateUp(context.Background()); err != nil {
		database.Close()
		t.Fatalf("migrate: %v", err)
	}

	publisher := events.NewInMemoryPublisher()
	t.Cleanup(func() {
		_ = publisher.Close()
		_ = database.Close()
	})

	return &StoreEnv{
		DB:        database,
		Publisher: publisher,
		Profiles:  db.NewProfileRepository(database),
		Poems:     db.NewPoemRepository(database),
		t:         t,
	}
}

// SeedProfiles inserts a profile per id, with username id and display
// name "User <id>".
func (e *StoreEnv) SeedProfiles(ids ...string) {
	e.t.Helper()
	for _, id := range ids {
		if err := e.Profiles.Upsert(context.Background(), &models.Profile{
			ID:          id,
			Username:    id,
			DisplayName: "User " + id,
		}); err != nil {
			e.t.Fatalf("seed profile %s: %v", id, err)
		}
	}
}

// SeedPoem inserts a poem authored by authorID.
func (e *StoreEnv) SeedPoem(id, authorID, title string) {
	e.t.Helper()
	if err := e.Poems.Upsert(context.Background(), &models.Poem{
		ID:       id,
		AuthorID: authorID,
		Title:    title,
	}); err != nil {
		e.t.Fatalf("seed poem %s: %v", id, err)
	}
}

// WaitFor polls cond until it returns true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
