package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stanzahq/stanza/internal/models"
)

func setupConversation(t *testing.T, database *DB) *models.Conversation {
	t.Helper()

	seedProfiles(t, database, "alice", "bob")
	conv, _, err := NewConversationRepository(database).GetOrCreate(context.Background(), "alice", "bob")
	require.NoError(t, err)
	return conv
}

func TestMessageAppendAndList(t *testing.T) {
	database := setupTestDB(t)
	conv := setupConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	msg := &models.Message{ConversationID: conv.ID, SenderID: "alice", Content: "hi bob"}
	require.NoError(t, repo.Append(ctx, msg))
	require.NotEmpty(t, msg.ID)
	require.Positive(t, msg.Seq)
	require.False(t, msg.IsRead)
	require.False(t, msg.CreatedAt.IsZero())

	messages, err := repo.List(ctx, conv.ID, MessageQuery{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, msg.ID, messages[0].ID)
	require.Equal(t, "hi bob", messages[0].Content)
	require.NotNil(t, messages[0].Sender)
	require.Equal(t, "User alice", messages[0].Sender.Name())

	fetched, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, msg.Seq, fetched.Seq)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrMessageNotFound)

	updated, err := NewConversationRepository(database).Get(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, !updated.UpdatedAt.Before(msg.CreatedAt))
}

func TestMessageAppendRejectsInvalidInput(t *testing.T) {
	database := setupTestDB(t)
	conv := setupConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	err := repo.Append(ctx, &models.Message{ConversationID: conv.ID, SenderID: "alice", Content: "   "})
	require.ErrorIs(t, err, ErrInvalidMessage)
	require.ErrorIs(t, err, models.ErrValidation)

	err = repo.Append(ctx, &models.Message{ConversationID: "missing", SenderID: "alice", Content: "hello"})
	require.ErrorIs(t, err, ErrConversationNotFound)

	messages, err := repo.List(ctx, conv.ID, MessageQuery{})
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestMessageOrderingSurvivesClockSkew(t *testing.T) {
	database := setupTestDB(t)
	conv := setupConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	repo.now = func() time.Time {
		now := clock[i]
		i++
		return now
	}

	var appended []string
	for _, content := range []string{"one", "two", "three", "four"} {
		msg := &models.Message{ConversationID: conv.ID, SenderID: "bob", Content: content}
		require.NoError(t, repo.Append(ctx, msg))
		appended = append(appended, msg.Content)
	}

	messages, err := repo.List(ctx, conv.ID, MessageQuery{})
	require.NoError(t, err)
	require.Len(t, messages, 4)

	var listed []string
	for i, msg := range messages {
		listed = append(listed, msg.Content)
		if i > 0 {
			require.True(t, messages[i-1].Before(msg))
		}
	}
	require.Equal(t, appended, listed)
	require.True(t, messages[2].CreatedAt.Equal(base))
}

func TestMessageListAfterSeqAndLimit(t *testing.T) {
	database := setupTestDB(t)
	conv := setupConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	var seqs []int64
	for _, content := range []string{"a", "b", "c", "d"} {
		msg := &models.Message{ConversationID: conv.ID, SenderID: "alice", Content: content}
		require.NoError(t, repo.Append(ctx, msg))
		seqs = append(seqs, msg.Seq)
	}

	messages, err := repo.List(ctx, conv.ID, MessageQuery{AfterSeq: seqs[1]})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "c", messages[0].Content)

	messages, err = repo.List(ctx, conv.ID, MessageQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "a", messages[0].Content)
}

func TestMessageMarkRead(t *testing.T) {
	database := setupTestDB(t)
	conv := setupConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	for _, sender := range []string{"alice", "bob", "bob"} {
		require.NoError(t, repo.Append(ctx, &models.Message{
			ConversationID: conv.ID,
			SenderID:       sender,
			Content:        "from " + sender,
		}))
	}

	unread, err := repo.UnreadCountForUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, unread)

	changed, err := repo.MarkRead(ctx, conv.ID, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 2, changed)

	// Marking again changes nothing and never flips a message back.
	changed, err = repo.MarkRead(ctx, conv.ID, "alice")
	require.NoError(t, err)
	require.Zero(t, changed)

	messages, err := repo.List(ctx, conv.ID, MessageQuery{})
	require.NoError(t, err)
	for _, msg := range messages {
		if msg.SenderID == "alice" {
			require.False(t, msg.IsRead, "own message must stay unread")
		} else {
			require.True(t, msg.IsRead)
		}
	}

	unread, err = repo.UnreadCountForUser(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, unread)

	unread, err = repo.UnreadCountForUser(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 1, unread)
}
