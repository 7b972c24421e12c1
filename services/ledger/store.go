// Package ledger reads settled binary option trades for reporting.
package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"signal_report_backend/models"
)

// Store is the read side of the trade ledger
type Store interface {
	// CountByResult counts closed trades opened in [from, to).
	// Trades without a close time are never counted.
	CountByResult(ctx context.Context, from, to time.Time) (models.ResultCounts, error)
}

// GormStore reads the binary_option_trades table
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a ledger backed by gorm
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CountByResult runs a single aggregate query over the range
func (s *GormStore) CountByResult(ctx context.Context, from, to time.Time) (models.ResultCounts, error) {
	var row struct {
		Total int64
		ITM   int64 `gorm:"column:itm"`
		OTM   int64 `gorm:"column:otm"`
	}

	err := s.db.WithContext(ctx).
		Model(&models.BinaryOptionTrade{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0) AS itm, "+
				"COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0) AS otm",
			string(models.ResultITM), string(models.ResultOTM),
		).
		Where("open_time >= ? AND open_time < ? AND close_time IS NOT NULL", from.UTC(), to.UTC()).
		Scan(&row).Error
	if err != nil {
		return models.ResultCounts{}, fmt.Errorf("failed to count trades: %w", err)
	}

	return models.ResultCounts{Total: row.Total, ITM: row.ITM, OTM: row.OTM}, nil
}
