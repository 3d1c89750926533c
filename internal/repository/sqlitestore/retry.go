package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/spec-kit/support-router/internal/repository"
)

// isTransientSQLiteErr reports errors that clear on retry: BUSY, LOCKED and
// the WAL short read that surfaces under concurrent access.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// translate folds driver errors into the repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return repository.ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	case isTransientSQLiteErr(err), errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return err
}

// conditional maps a conditional write that matched nothing to ErrConflict.
func conditional(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrConflict
	}
	return translate(err)
}

// onContention retries fn while SQLite reports lock contention. A statement
// that failed with BUSY did not apply, so retrying writes is safe.
func onContention[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !isTransientSQLiteErr(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(4))
}

func execWrite(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return onContention(ctx, func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}
