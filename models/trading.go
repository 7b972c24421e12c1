package models

import (
	"time"

	"gorm.io/gorm"
)

// TradeResult is the settled outcome of a binary option trade
type TradeResult string

const (
	ResultITM     TradeResult = "ITM"
	ResultOTM     TradeResult = "OTM"
	ResultPending TradeResult = "PENDING"
	// ResultVoid covers breakeven and cancelled trades: closed, but neither won nor lost.
	ResultVoid TradeResult = "VOID"
)

// BinaryOptionTrade is one row of the trade ledger. A trade is immutable once CloseTime is set;
// rows without CloseTime never take part in a report.
type BinaryOptionTrade struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Symbol    string      `gorm:"index" json:"symbol"`
	Direction string      `json:"direction"` // CALL, PUT
	OpenTime  time.Time   `gorm:"index;not null" json:"open_time"`
	CloseTime *time.Time  `json:"close_time"`
	Result    TradeResult `gorm:"type:varchar(16);index" json:"result"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName pins the ledger table name
func (BinaryOptionTrade) TableName() string {
	return "binary_option_trades"
}

// BeforeSave stores every timestamp in UTC so range queries compare like with like
func (t *BinaryOptionTrade) BeforeSave(tx *gorm.DB) error {
	t.OpenTime = t.OpenTime.UTC()
	if t.CloseTime != nil {
		closed := t.CloseTime.UTC()
		t.CloseTime = &closed
	}
	return nil
}

// IsClosed reports whether the trade has settled
func (t *BinaryOptionTrade) IsClosed() bool {
	return t.CloseTime != nil
}

// ResultCounts is what the ledger returns for a date range: closed trades only
type ResultCounts struct {
	Total int64 `json:"total"`
	ITM   int64 `json:"itm"`
	OTM   int64 `json:"otm"`
}

// MigrateTradingModels runs database migrations for the trade ledger
func MigrateTradingModels(db *gorm.DB) error {
	return db.AutoMigrate(&BinaryOptionTrade{})
}
