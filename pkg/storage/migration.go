package storage

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// schemaVersion is bumped when a release needs to rewrite stored rows
// beyond what AutoMigrate does.
const schemaVersion = 0

// Migration is the single row recording the schema version of the database.
type Migration struct {
	ID        string `gorm:"primarykey"`
	CreatedAt int64
	UpdatedAt int64

	Version int `gorm:"not null;default:0"`
}

// checkVersion records the schema version of a new database and refuses
// to open one written by a newer release.
func checkVersion(db *gorm.DB) error {
	if !db.Migrator().HasTable(&Migration{}) {
		if err := db.Migrator().CreateTable(&Migration{}); err != nil {
			return fmt.Errorf("storage: failed to create table migrations: %w", err)
		}
		if err := db.Create(&Migration{ID: ulid.Make().String(), Version: schemaVersion}).Error; err != nil {
			return fmt.Errorf("storage: failed to save schema version: %w", err)
		}
		return nil
	}
	var m Migration
	if err := db.First(&m).Error; err != nil {
		return fmt.Errorf("storage: failed to get schema version: %w", err)
	}
	if m.Version > schemaVersion {
		return fmt.Errorf("storage: database schema version %d is newer than supported %d", m.Version, schemaVersion)
	}
	return nil
}
