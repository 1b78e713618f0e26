package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// SQLite primary result codes for contention.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// RetryPolicy bounds how write transactions retry under lock contention.
// Backoff doubles after each busy attempt.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy serves concurrent conversation creation and message
// appends from several processes sharing one database file.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Backoff: 20 * time.Millisecond}

// WriteTx runs fn in a transaction under DefaultRetryPolicy.
func (db *DB) WriteTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return db.TransactionWithRetry(ctx, DefaultRetryPolicy, fn)
}

// TransactionWithRetry runs fn in a transaction, starting over while SQLite
// reports the database busy or locked. fn must be safe to run more than
// once.
func (db *DB) TransactionWithRetry(ctx context.Context, policy RetryPolicy, fn func(*sql.Tx) error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultRetryPolicy.Attempts
	}
	if policy.Backoff <= 0 {
		policy.Backoff = DefaultRetryPolicy.Backoff
	}

	backoff := policy.Backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := db.Transaction(ctx, fn)
		if err == nil || !isBusyError(err) || attempt >= policy.Attempts {
			return err
		}
		db.logger.Debug().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("database busy, retrying transaction")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func isBusyError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database table is locked") ||
		strings.Contains(message, "sqlite_busy")
}
