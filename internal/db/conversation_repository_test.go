package db

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stanzahq/stanza/internal/models"
)

func TestConversationGetOrCreateIsOrderIndependent(t *testing.T) {
	database := setupTestDB(t)
	seedProfiles(t, database, "alice", "bob")
	ctx := context.Background()
	repo := NewConversationRepository(database)

	first, created, err := repo.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, []string{"alice", "bob"}, first.Participants)

	second, created, err := repo.GetOrCreate(ctx, "bob", "alice")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	fetched, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, fetched.Participants)
}

func TestConversationGetOrCreateRejectsInvalidPairs(t *testing.T) {
	database := setupTestDB(t)
	seedProfiles(t, database, "alice")
	repo := NewConversationRepository(database)
	ctx := context.Background()

	_, _, err := repo.GetOrCreate(ctx, "alice", "alice")
	require.ErrorIs(t, err, models.ErrSelfConversation)

	_, _, err = repo.GetOrCreate(ctx, "alice", " ")
	require.ErrorIs(t, err, models.ErrValidation)

	_, _, err = repo.GetOrCreate(ctx, "alice", "ghost")
	require.ErrorIs(t, err, ErrProfileNotFound)

	summaries, err := repo.ListSummaries(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, summaries)
}

func TestConversationGetOrCreateConcurrent(t *testing.T) {
	for name, open := range map[string]func(*testing.T) *DB{
		"memory": setupTestDB,
		"file":   setupFileDB,
	} {
		t.Run(name, func(t *testing.T) {
			database := open(t)
			seedProfiles(t, database, "alice", "bob")
			repo := NewConversationRepository(database)

			const workers = 16
			ids := make([]string, workers)
			errs := make([]error, workers)
			var createdCount int
			var mu sync.Mutex
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					a, b := "alice", "bob"
					if i%2 == 1 {
						a, b = b, a
					}
					conv, created, err := repo.GetOrCreate(context.Background(), a, b)
					errs[i] = err
					if err == nil {
						ids[i] = conv.ID
						if created {
							mu.Lock()
							createdCount++
							mu.Unlock()
						}
					}
				}(i)
			}
			wg.Wait()

			for i := range errs {
				require.NoError(t, errs[i], "worker %d", i)
				require.Equal(t, ids[0], ids[i])
			}
			require.Equal(t, 1, createdCount)

			var rows int
			require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&rows))
			require.Equal(t, 1, rows)
			require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM conversation_participants`).Scan(&rows))
			require.Equal(t, 2, rows)
		})
	}
}

func TestConversationGetOrCreateAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stanza.db")
	cfg := DefaultConfig()
	cfg.Path = path

	const handles = 4
	repos := make([]*ConversationRepository, handles)
	for i := range repos {
		database, err := Open(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { database.Close() })
		if i == 0 {
			_, err = database.MigrateUp(context.Background())
			require.NoError(t, err)
			seedProfiles(t, database, "alice", "bob")
		}
		repos[i] = NewConversationRepository(database)
	}

	const workers = 40
	ids := make([]string, workers)
	errs := make([]error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			<-start
			conv, _, err := repos[i%handles].GetOrCreate(context.Background(), a, b)
			errs[i] = err
			if err == nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i], "worker %d", i)
		require.Equal(t, ids[0], ids[i], "worker %d", i)
	}

	check, err := Open(cfg)
	require.NoError(t, err)
	defer check.Close()
	var rows int
	require.NoError(t, check.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&rows))
	require.Equal(t, 1, rows)
	require.NoError(t, check.QueryRow(`SELECT COUNT(*) FROM conversation_participants`).Scan(&rows))
	require.Equal(t, 2, rows)
}

func TestConversationGetOrCreateIDsWithColons(t *testing.T) {
	database := setupTestDB(t)
	seedProfiles(t, database, "a:b", "c", "a", "b:c")
	repo := NewConversationRepository(database)
	ctx := context.Background()

	first, created, err := repo.GetOrCreate(ctx, "a:b", "c")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.GetOrCreate(ctx, "a", "b:c")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, []string{"a", "b:c"}, second.Participants)

	ok, err := repo.IsParticipant(ctx, second.ID, "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConversationListSummaries(t *testing.T) {
	database := setupTestDB(t)
	seedProfiles(t, database, "alice", "bob", "carol")
	ctx := context.Background()
	conversations := NewConversationRepository(database)
	messages := NewMessageRepository(database)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	conversations.now = tick
	messages.now = tick

	withBob, _, err := conversations.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	withCarol, _, err := conversations.GetOrCreate(ctx, "carol", "alice")
	require.NoError(t, err)

	for i, sender := range []string{"bob", "bob", "alice"} {
		require.NoError(t, messages.Append(ctx, &models.Message{
			ConversationID: withBob.ID,
			SenderID:       sender,
			Content:        fmt.Sprintf("message %d", i),
		}))
	}

	summaries, err := conversations.ListSummaries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	require.Equal(t, withBob.ID, summaries[0].ID)
	require.Equal(t, "bob", summaries[0].Other.ID)
	require.Equal(t, "User bob", summaries[0].Other.Name())
	require.NotNil(t, summaries[0].LastMessage)
	require.Equal(t, "message 2", summaries[0].LastMessage.Content)
	require.Equal(t, 2, summaries[0].UnreadCount)

	require.Equal(t, withCarol.ID, summaries[1].ID)
	require.Equal(t, "carol", summaries[1].Other.ID)
	require.Nil(t, summaries[1].LastMessage)
	require.Zero(t, summaries[1].UnreadCount)

	bobView, err := conversations.ListSummaries(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobView, 1)
	require.Equal(t, 1, bobView[0].UnreadCount)
}

func TestConversationIsParticipant(t *testing.T) {
	database := setupTestDB(t)
	seedProfiles(t, database, "alice", "bob", "carol")
	ctx := context.Background()
	repo := NewConversationRepository(database)

	conv, _, err := repo.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	ok, err := repo.IsParticipant(ctx, conv.ID, "bob")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IsParticipant(ctx, conv.ID, "carol")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrConversationNotFound)
}
