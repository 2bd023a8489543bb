package txn

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/giftpoints/db"
	"github.com/kasuganosora/giftpoints/locks"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxAttempts = 3
	backoffStep = 100 * time.Millisecond
	pingTimeout = 15 * time.Second
)

// Executor runs units of work as atomic database transactions with
// bounded retry on transient failures. It is the only component allowed
// to surface a terminal storage error; everything above it deals in
// business results.
type Executor struct {
	db       *gorm.DB
	registry *locks.Registry
	logger   *zap.Logger
}

// NewExecutor creates an Executor over the given database and lock
// registry.
func NewExecutor(gdb *gorm.DB, registry *locks.Registry, logger *zap.Logger) *Executor {
	return &Executor{db: gdb, registry: registry, logger: logger}
}

// DB exposes the underlying gorm handle for read-only queries that do
// not need transactional scope.
func (e *Executor) DB() *gorm.DB {
	return e.db
}

// Registry exposes the lock registry shared by this executor.
func (e *Executor) Registry() *locks.Registry {
	return e.registry
}

// Run executes fn inside a transaction: commit on nil, rollback on
// error. Transient failures are retried up to maxAttempts with linearly
// increasing backoff; the last error is returned wrapped once retries
// are exhausted. Non-transient errors return immediately after the
// rollback.
func (e *Executor) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := e.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		last = err
		e.logger.Warn("transient transaction failure",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * backoffStep)
		}
	}
	return fmt.Errorf("txn: %d attempts exhausted: %w", maxAttempts, last)
}

// RunWithWriteLock serializes fn against every other lock-holder of
// name before running it as a transaction.
func (e *Executor) RunWithWriteLock(ctx context.Context, name string, fn func(tx *gorm.DB) error) error {
	g := e.registry.AcquireWrite(name)
	defer g.Release()
	return e.Run(ctx, fn)
}

// RunWithReadLock runs fn as a transaction while holding a shared read
// lock on name, blocking writers of the same name but not other
// readers.
func (e *Executor) RunWithReadLock(ctx context.Context, name string, fn func(tx *gorm.DB) error) error {
	g := e.registry.AcquireRead(name)
	defer g.Release()
	return e.Run(ctx, fn)
}

// Health is the executor's diagnostic snapshot.
type Health struct {
	Connected    bool         `json:"connected"`
	Pool         db.PoolStats `json:"pool"`
	Locks        locks.Stats  `json:"locks"`
	LocksHealthy bool         `json:"locks_healthy"`
}

// HealthCheck pings the database with a bounded timeout and reports
// pool and lock statistics.
func (e *Executor) HealthCheck(ctx context.Context) Health {
	h := Health{
		Pool:         db.Stats(e.db),
		Locks:        e.registry.Stats(),
		LocksHealthy: e.registry.Healthy(),
	}
	sqlDB, err := e.db.DB()
	if err != nil {
		return h
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	h.Connected = sqlDB.PingContext(pingCtx) == nil
	return h
}

// IsTransient reports whether an error is worth retrying: lock
// contention, dropped connections, and timeouts. Logical errors
// (not-found, constraint violations) are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"database is locked",
		"database table is locked",
		"deadlock",
		"try restarting transaction",
		"bad connection",
		"connection refused",
		"connection reset",
		"too many connections",
		"i/o timeout",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
