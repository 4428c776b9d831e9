package database

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationStripTransientThumbnails = "2026-10-01_strip_transient_thumbnails"
	migrationNormalizeVersionHistory  = "2026-10-02_normalize_version_history"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, *zap.Logger) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations := []migrationDefinition{
		{name: migrationStripTransientThumbnails, apply: stripTransientMedia},
		{name: migrationNormalizeVersionHistory, apply: normalizeVersionHistory},
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
		if err := migration.apply(db, logger); err != nil {
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

// stripTransientMedia clears blob and other non-durable references that were
// persisted before writes were sanitized.
func stripTransientMedia(db *gorm.DB, logger *zap.Logger) error {
	return rewriteManuals(db, logger, func(manual manuals.Manual) (manuals.Manual, bool) {
		return manuals.SanitizeMedia(manual)
	})
}

// normalizeVersionHistory rewrites version strings into their normalized form
// and drops repeated history entries.
func normalizeVersionHistory(db *gorm.DB, logger *zap.Logger) error {
	return rewriteManuals(db, logger, func(manual manuals.Manual) (manuals.Manual, bool) {
		version := manuals.NormalizeVersion(manual.Version)
		history := manuals.AppendVersion(manual.Versions, version)
		changed := version != manual.Version || len(history) != len(manual.Versions)
		for index := 0; !changed && index < len(history); index++ {
			changed = history[index] != manual.Versions[index]
		}
		manual.Version = version
		manual.Versions = history
		return manual, changed
	})
}

// rewriteManuals applies rewrite to the persisted manual partition and saves it
// back when any record changed. Missing partitions are skipped; unreadable ones
// are logged and left as is.
func rewriteManuals(db *gorm.DB, logger *zap.Logger, rewrite func(manuals.Manual) (manuals.Manual, bool)) error {
	var entry storage.Entry
	err := db.Where("entry_key = ?", storage.KeyManuals).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var persisted []manuals.Manual
	if err := json.Unmarshal([]byte(entry.Value), &persisted); err != nil {
		logger.Warn("skipping migration of malformed manuals",
			zap.String("key", storage.KeyManuals),
			zap.Error(err),
		)
		return nil
	}
	changed := false
	for index := range persisted {
		rewritten, modified := rewrite(persisted[index])
		if modified {
			persisted[index] = rewritten
			changed = true
		}
	}
	if !changed {
		return nil
	}

	encoded, err := json.Marshal(persisted)
	if err != nil {
		return err
	}
	return db.Model(&storage.Entry{}).
		Where("entry_key = ?", storage.KeyManuals).
		Updates(map[string]any{
			"entry_value":  string(encoded),
			"updated_at_s": time.Now().UTC().Unix(),
		}).Error
}
