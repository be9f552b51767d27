// Package lock provides the run lock that keeps two tablesync processes
// from replicating into the same target at once.
package lock

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/tablesync/internal/database"
)

// ErrLockHeld is returned when another instance is holding the lock.
var ErrLockHeld = errors.New("lock is held by another instance")

// maxLockNameLen is MySQL's limit for GET_LOCK names.
const maxLockNameLen = 64

// releaseTimeout bounds the release issued from WithLock's deferred cleanup.
const releaseTimeout = 5 * time.Second

// AdvisoryLock is a session-scoped database lock. The session is pinned
// to a dedicated connection for as long as the lock is held, so the release
// runs on the session that took it and a crashed process frees the lock
// when its connection drops.
//
// On products without advisory locks (acquire statement empty) the lock is
// a no-op that always succeeds.
type AdvisoryLock struct {
	db         *sql.DB
	lockName   string
	acquireSQL string
	releaseSQL string

	conn *sql.Conn
	held bool
}

// NewAdvisoryLock creates a lock with explicit statements. Both statements
// take the lock name as their only argument and return 1 on success.
func NewAdvisoryLock(db *sql.DB, lockName, acquireSQL, releaseSQL string) *AdvisoryLock {
	return &AdvisoryLock{
		db:         db,
		lockName:   lockName,
		acquireSQL: acquireSQL,
		releaseSQL: releaseSQL,
	}
}

// NewRunLock creates the run lock for a target endpoint. The name is
// derived from the checkpoint table so that runs sharing sync state
// exclude each other.
func NewRunLock(target *database.DB, checkpointTable string) *AdvisoryLock {
	acquire, release := target.Dialect().LockStatements()
	return NewAdvisoryLock(target.Conn(), GenerateRunLockName(checkpointTable), acquire, release)
}

// GenerateRunLockName creates a consistent lock name of the form
// "tablesync:run:{scope}". Characters outside [A-Za-z0-9_-] become
// underscores. Names longer than MySQL allows are shortened with a hash.
func GenerateRunLockName(scope string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, scope)

	name := "tablesync:run:" + sanitized
	if len(name) <= maxLockNameLen {
		return name
	}
	sum := sha256.Sum256([]byte(scope))
	return "tablesync:run:" + hex.EncodeToString(sum[:])[:32]
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// isHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) isHeld() bool {
	return a.held
}

// TryAcquire attempts to acquire the lock without waiting.
// Returns true if acquired, false if another session holds it.
// Returns an error only if there is a database failure.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	if a.held {
		return true, nil
	}
	if a.acquireSQL == "" {
		a.held = true
		return true, nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get lock connection: %w", err)
	}

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, a.acquireSQL, a.lockName).Scan(&result); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("failed to acquire lock %q: %w", a.lockName, err)
	}

	if !result.Valid {
		_ = conn.Close()
		return false, fmt.Errorf("lock %q: acquire returned NULL (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		a.held = true
		return true, nil
	case 0:
		_ = conn.Close()
		return false, nil
	default:
		_ = conn.Close()
		return false, fmt.Errorf("lock %q: unexpected acquire result %d", a.lockName, result.Int64)
	}
}

// AcquireOrFail acquires the lock or returns ErrLockHeld.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.TryAcquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: %q", ErrLockHeld, a.lockName)
	}
	return nil
}

// Release releases the lock and returns its pinned connection to the pool.
// Returns true if the database confirmed the release, false if the lock
// was not held.
func (a *AdvisoryLock) Release(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}
	a.held = false

	if a.conn == nil {
		return true, nil
	}
	conn := a.conn
	a.conn = nil
	defer func() { _ = conn.Close() }()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, a.releaseSQL, a.lockName).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to release lock %q: %w", a.lockName, err)
	}
	if !result.Valid {
		return false, fmt.Errorf("lock %q: release returned NULL (lock did not exist)", a.lockName)
	}
	return result.Int64 == 1, nil
}

// WithLock runs fn while holding the lock. The lock is released when fn
// returns or panics, using a fresh context so a cancelled run still
// releases it.
func (a *AdvisoryLock) WithLock(ctx context.Context, fn func(context.Context) error) error {
	if err := a.AcquireOrFail(ctx); err != nil {
		return err
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		// A failed release is harmless: closing the pinned connection drops it.
		_, _ = a.Release(releaseCtx)
	}()

	return fn(ctx)
}
