package database

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
)

const migrationNormalizeLifecycleFlags = "2026-10-18_normalize_lifecycle_flags"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(db *gorm.DB, storageKey string, logger *zap.Logger) error
}

func applyMigrations(db *gorm.DB, storageKey string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations := []migrationDefinition{
		{name: migrationNormalizeLifecycleFlags, apply: normalizeLifecycleFlags},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db, storageKey, logger); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// normalizeLifecycleFlags clears isArchived on persisted notes that are also deleted.
// Unknown fields are preserved; an unreadable collection is left for the loader to reject.
func normalizeLifecycleFlags(db *gorm.DB, storageKey string, logger *zap.Logger) error {
	var entry notes.KeyValueEntry
	err := db.Where("entry_key = ?", storageKey).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(entry.Value), &records); err != nil {
		logger.Warn("skipping lifecycle normalization of unreadable notes", zap.String("key", storageKey), zap.Error(err))
		return nil
	}

	repaired := 0
	for _, record := range records {
		deleted, _ := record["isDeleted"].(bool)
		archived, _ := record["isArchived"].(bool)
		if deleted && archived {
			record["isArchived"] = false
			repaired++
		}
	}
	if repaired == 0 {
		return nil
	}

	encoded, err := json.Marshal(records)
	if err != nil {
		return err
	}
	logger.Info("normalized lifecycle flags", zap.Int("notes", repaired))
	return db.Model(&notes.KeyValueEntry{}).
		Where("entry_key = ?", storageKey).
		Updates(map[string]any{
			"entry_value":   string(encoded),
			"updated_at_ms": time.Now().UTC().UnixMilli(),
		}).Error
}
