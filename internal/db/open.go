package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vigneshm/keel/internal/storelock"
)

// Dialect selects the relational backend Open connects to.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Open connects to dsn under the given dialect, silencing GORM's own
// logger in favor of the caller's slog logger, and runs AutoMigrate for
// every table in AllTables under a bootstrap lock so concurrently starting
// replicas never race on schema creation.
func Open(dialect Dialect, dsn string, logger *slog.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	case DialectMySQL:
		dialector = mysql.Open(dsn)
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	locker := storelock.New(gormDB)
	migrateErr := locker.WithLock(context.Background(), func() error {
		return gormDB.AutoMigrate(AllTables()...)
	})
	if migrateErr != nil {
		return nil, fmt.Errorf("migrate schema: %w", migrateErr)
	}

	logger.Info("database ready", "dialect", dialect)
	return gormDB, nil
}

// memoryDBSeq numbers the in-memory databases OpenMemory creates.
var memoryDBSeq atomic.Int64

// OpenMemory opens a new, empty in-memory SQLite database, for tests and
// embedded use, with AutoMigrate already applied. Each call gets its own
// uniquely named database; the DSN uses SQLite's shared-cache mode so every
// pooled connection of that handle sees the same in-memory database rather
// than each getting its own private one, and the pool is capped at a
// single open connection since SQLite serializes writers anyway and a
// dropped last connection would otherwise tear the shared cache down.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:keel-memory-%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
	gormDB, err := Open(DialectSQLite, dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return gormDB, nil
}
