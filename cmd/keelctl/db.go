package main

import (
	"fmt"
	"log/slog"
	"os"

	"gorm.io/gorm"

	"github.com/vigneshm/keel/internal/db"
)

func openDB() (*gorm.DB, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	switch db.Dialect(dialectFlag) {
	case db.DialectPostgres, db.DialectMySQL, db.DialectSQLite:
		return db.Open(db.Dialect(dialectFlag), dsnFlag, logger)
	default:
		return nil, fmt.Errorf("unsupported dialect %q (use postgres, mysql, or sqlite)", dialectFlag)
	}
}
