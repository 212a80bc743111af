package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
)

// OpenSQLite establishes a SQLite connection, migrates the schema and applies data
// migrations to the note collection stored under storageKey.
func OpenSQLite(path string, storageKey string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if storageKey == "" {
		return nil, fmt.Errorf("storage key is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&notes.KeyValueEntry{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, storageKey, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
