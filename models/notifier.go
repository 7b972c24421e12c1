package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Known notification channel names. They are the stable identity used by the
// settings cache and every dispatch decision.
const (
	ChannelTelegram  = "Telegram"
	ChannelWhatsApp  = "WhatsApp"
	ChannelRedis     = "Redis"
	ChannelDashboard = "Dashboard"
)

// KnownChannels lists every channel that gets a settings row at start-up.
var KnownChannels = []string{ChannelTelegram, ChannelWhatsApp, ChannelRedis, ChannelDashboard}

// NotifierSetting is the enable/disable switch of one notification channel
type NotifierSetting struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	NotifierName string    `gorm:"uniqueIndex;not null" json:"notifier_name"`
	IsEnabled    bool      `gorm:"not null" json:"is_enabled"`
	LastUpdated  time.Time `json:"last_updated"`
	UpdatedBy    *string   `json:"updated_by"`
}

// TableName pins the table name used by the original admin database
func (NotifierSetting) TableName() string {
	return "notifier_settings"
}

// MigrateNotifierModels runs database migrations for notifier settings
func MigrateNotifierModels(db *gorm.DB) error {
	return db.AutoMigrate(&NotifierSetting{})
}

// SeedNotifierSettings inserts a row for each channel that does not have one yet.
// Existing rows keep their state.
func SeedNotifierSettings(db *gorm.DB, names []string, enabled bool) error {
	now := time.Now().UTC()
	for _, name := range names {
		row := NotifierSetting{
			NotifierName: name,
			IsEnabled:    enabled,
			LastUpdated:  now,
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "notifier_name"}},
			DoNothing: true,
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}
