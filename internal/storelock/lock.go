// Package storelock serializes schema bootstrap (AutoMigrate) so that two
// keelctl invocations (or reconciliation workers) starting against the
// same database don't race on creating the same tables. Unlike the
// teacher's HA migration lock — built for a server with many concurrently
// starting replicas, which falls back to a polling table-row lock with
// stale-lock cleanup for dialects without a native advisory primitive —
// keel's only callers are short-lived CLI invocations and the
// SQLite dev/embedded/test path, so PostgreSQL and MySQL each use their
// native lock with no client-side retry loop, and SQLite takes no lock.
package storelock

import (
	"context"
	"fmt"
	"hash/crc32"

	"gorm.io/gorm"
)

// Locker guards a critical section with a database-backed lock that works
// across process boundaries.
type Locker interface {
	// WithLock blocks until the lock is acquired, runs fn, then releases it.
	WithLock(ctx context.Context, fn func() error) error
}

// lockName is the named lock every process bootstrapping schema against
// the same database contends for.
const lockName = "keel-store-bootstrap"

// New returns a Locker appropriate for db's dialect: a PostgreSQL session
// advisory lock, a MySQL named lock, or a no-op for SQLite. SQLite needs
// no cross-process lock here: OpenMemory caps the connection pool at one,
// so a single process never races itself, and the embedded/dev deployment
// this dialect targets has no second process to race against.
func New(db *gorm.DB) Locker {
	if db == nil {
		return noopLocker{}
	}
	switch db.Dialector.Name() {
	case "postgres":
		return &pgAdvisoryLocker{db: db, lockID: int64(crc32.ChecksumIEEE([]byte(lockName)))}
	case "mysql":
		return &mysqlNamedLocker{db: db}
	default:
		return noopLocker{}
	}
}

type noopLocker struct{}

func (noopLocker) WithLock(_ context.Context, fn func() error) error { return fn() }

// pgAdvisoryLocker holds a PostgreSQL session-level advisory lock. The
// server releases it automatically if the session drops without an
// explicit unlock, so a crashed bootstrapper can never wedge the lock.
type pgAdvisoryLocker struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLocker) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
		return fmt.Errorf("acquire bootstrap advisory lock: %w", err)
	}
	defer func() {
		_ = l.db.Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
	}()
	return fn()
}

// mysqlNamedLocker holds a MySQL GET_LOCK/RELEASE_LOCK named lock, which
// blocks server-side until the lock is free (or the connection drops)
// rather than requiring a client-side retry-and-poll loop over a table.
type mysqlNamedLocker struct {
	db *gorm.DB
}

func (l *mysqlNamedLocker) WithLock(ctx context.Context, fn func() error) error {
	var acquired int
	if err := l.db.WithContext(ctx).Raw("SELECT GET_LOCK(?, -1)", lockName).Scan(&acquired).Error; err != nil {
		return fmt.Errorf("acquire bootstrap named lock: %w", err)
	}
	if acquired != 1 {
		return fmt.Errorf("acquire bootstrap named lock: GET_LOCK returned %d", acquired)
	}
	defer func() {
		_ = l.db.Exec("SELECT RELEASE_LOCK(?)", lockName).Error
	}()
	return fn()
}
