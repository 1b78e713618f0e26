package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsBusyError(t *testing.T) {
	require.True(t, isBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.True(t, isBusyError(codedError(sqliteLocked)))
	require.False(t, isBusyError(errors.New("boom")))
	require.False(t, isBusyError(context.Canceled))
	require.False(t, isBusyError(nil))
}

func TestTransactionWithRetryHonoursCancelledContext(t *testing.T) {
	database := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := database.TransactionWithRetry(ctx, DefaultRetryPolicy, func(tx *sql.Tx) error {
		t.Fatal("fn should not run with a cancelled context")
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestTransactionWithRetry(t *testing.T) {
	database := setupTestDB(t)

	ctx := context.Background()
	attempts := 0

	err := database.TransactionWithRetry(ctx, RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func(tx *sql.Tx) error {
		attempts++
		if attempts < 2 {
			return errors.New("database is locked")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

type codedError int

func (e codedError) Error() string { return "sqlite error" }
func (e codedError) Code() int     { return int(e) }

func TestTransactionWithRetryStopsOnOtherErrors(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	attempts := 0
	err := database.TransactionWithRetry(ctx, RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func(tx *sql.Tx) error {
		attempts++
		return errors.New("UNIQUE constraint failed: conversations.user_low, conversations.user_high")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)

	attempts = 0
	err = database.TransactionWithRetry(ctx, RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func(tx *sql.Tx) error {
		attempts++
		return codedError(sqliteBusy | 1<<8)
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	err := database.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (id, username, created_at) VALUES ('u1', 'u1', ?)
		`, formatTime(time.Now())); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	exists, err := NewProfileRepository(database).Exists(ctx, "u1")
	require.NoError(t, err)
	require.False(t, exists)
}
