package sqlite

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const SqliteInMemoryPath = "file::memory:?cache=shared"

func NewInMemorySqlite(l *zap.Logger) gorm.Dialector {
	return NewSqlite(SqliteInMemoryPath, l)
}

// NewInMemorySqliteWithName returns an in-memory database private to name.
func NewInMemorySqliteWithName(name string, l *zap.Logger) gorm.Dialector {
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	return NewSqlite(path, l)
}

func NewSqlite(path string, l *zap.Logger) gorm.Dialector {
	l.Sugar().Debugw("Opening sqlite database", zap.String("path", path))
	return sqlite.Open(path)
}

func NewGormSqliteFromSqlite(sqlite gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// https://phiresky.github.io/blog/2020/sqlite-performance-tuning/
	pragmas := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = normal;`,
		`PRAGMA busy_timeout = 5000;`,
	}

	for _, pragma := range pragmas {
		res := db.Exec(pragma)
		if res.Error != nil {
			return nil, res.Error
		}
	}

	// a single writer avoids SQLITE_BUSY between pooled connections
	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxOpenConns(1)

	return db, nil
}
