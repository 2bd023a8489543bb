package sqlite

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates a GORM *DB backed by a SQLite file. A busy timeout is
// set so concurrent writers surface SQLITE_BUSY as a retryable error
// instead of failing immediately.
func Open(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	return open(dsn)
}

// OpenMemory creates a named shared-cache in-memory database. All
// connections with the same name see the same data, which is what
// the tests and the memory backend mode need.
func OpenMemory(name string) (*gorm.DB, error) {
	if name == "" {
		name = fmt.Sprintf("mem_%d", time.Now().UnixNano())
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := open(dsn)
	if err != nil {
		return nil, err
	}
	// A shared-cache memory DB disappears when its last connection
	// closes; pinning a single connection keeps it alive and avoids
	// shared-cache table locks between connections.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return db, nil
}

func open(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}
