package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"signal_report_backend/config"
	"signal_report_backend/models"
)

var johannesburg = mustLoad("Africa/Johannesburg")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { config.CloseDB(db) })
	require.NoError(t, models.MigrateTradingModels(db))
	return db
}

func trade(open time.Time, result models.TradeResult, closed bool) models.BinaryOptionTrade {
	t := models.BinaryOptionTrade{Symbol: "EURUSD", Direction: "CALL", OpenTime: open, Result: result}
	if closed {
		c := open.Add(5 * time.Minute)
		t.CloseTime = &c
	}
	return t
}

func TestGormStore_CountByResult(t *testing.T) {
	db := setupLedgerDB(t)
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, johannesburg)

	var trades []models.BinaryOptionTrade
	for i := 0; i < 7; i++ {
		trades = append(trades, trade(day.Add(time.Duration(9+i)*time.Hour), models.ResultITM, true))
	}
	for i := 0; i < 3; i++ {
		trades = append(trades, trade(day.Add(time.Duration(17+i)*time.Hour), models.ResultOTM, true))
	}
	trades = append(trades,
		// still open: never counted
		trade(day.Add(20*time.Hour), models.ResultPending, false),
		// late evening local time is still the same reporting day
		trade(day.Add(23*time.Hour+30*time.Minute), models.ResultVoid, true),
		// just past local midnight belongs to the next day although it is 06-03 in UTC
		trade(day.Add(24*time.Hour+30*time.Minute), models.ResultITM, true),
		trade(day.Add(-time.Minute), models.ResultOTM, true),
	)
	require.NoError(t, db.Create(&trades).Error)

	store := NewGormStore(db)
	counts, err := store.CountByResult(context.Background(), day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.ResultCounts{Total: 11, ITM: 7, OTM: 3}, counts)
}

func TestGormStore_CountByResultEmptyRange(t *testing.T) {
	store := NewGormStore(setupLedgerDB(t))
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	counts, err := store.CountByResult(context.Background(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.ResultCounts{}, counts)
}

func TestGormStore_CountByResultOnlyOpenTrades(t *testing.T) {
	db := setupLedgerDB(t)
	day := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	trades := []models.BinaryOptionTrade{
		trade(day.Add(time.Hour), models.ResultITM, false),
		trade(day.Add(2*time.Hour), models.ResultPending, false),
	}
	require.NoError(t, db.Create(&trades).Error)

	counts, err := NewGormStore(db).CountByResult(context.Background(), day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
	assert.Zero(t, counts.ITM)
}

func TestGormStore_CountByResultClosedDB(t *testing.T) {
	db := setupLedgerDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = NewGormStore(db).CountByResult(context.Background(), time.Now(), time.Now().Add(time.Hour))
	assert.Error(t, err)
}
