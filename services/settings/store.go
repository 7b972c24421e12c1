package settings

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"signal_report_backend/models"
)

// Store is the durable home of notifier settings
type Store interface {
	// ListAll returns every setting ordered by channel name.
	ListAll(ctx context.Context) ([]models.NotifierSetting, error)
	// UpsertEnabled switches a channel and returns the number of rows changed.
	// Zero means no channel has that name.
	UpsertEnabled(ctx context.Context, name string, enabled bool, updatedBy string) (int64, error)
}

// GormStore implements Store on the notifier_settings table
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a settings store backed by gorm
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// ListAll returns every setting ordered by channel name
func (s *GormStore) ListAll(ctx context.Context) ([]models.NotifierSetting, error) {
	var rows []models.NotifierSetting
	if err := s.db.WithContext(ctx).Order("notifier_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifier settings: %w", err)
	}
	return rows, nil
}

// UpsertEnabled updates the switch of an existing channel. Unknown names change nothing.
func (s *GormStore) UpsertEnabled(ctx context.Context, name string, enabled bool, updatedBy string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.NotifierSetting{}).
		Where("notifier_name = ?", name).
		Updates(map[string]interface{}{
			"is_enabled":   enabled,
			"last_updated": time.Now().UTC(),
			"updated_by":   updatedBy,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update notifier %s: %w", name, result.Error)
	}
	return result.RowsAffected, nil
}
