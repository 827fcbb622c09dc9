package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Setting is a key value row. Token records are kept as settings keyed by
// account.
type Setting struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Value     string
}

func (s *Store) GetSetting(ctx context.Context, id string) (*Setting, error) {
	var v Setting
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get setting %s: %w", id, err)
	}
	return &v, nil
}

// setSetting upserts v using tx, which may be a transaction.
func setSetting(tx *gorm.DB, v *Setting) error {
	if err := tx.Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set setting %s: %w", v.ID, err)
	}
	return nil
}

// DeleteSetting removes the settings with the given ids. Missing ids are
// ignored.
func (s *Store) DeleteSetting(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Delete(&Setting{}, "id IN ?", ids).Error; err != nil {
		return fmt.Errorf("storage: failed to delete settings %v: %w", ids, err)
	}
	return nil
}
