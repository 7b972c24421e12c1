package report

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_report_backend/config"
	"signal_report_backend/models"
	"signal_report_backend/services/ledger"
)

var johannesburg = mustLoad("Africa/Johannesburg")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// stubLedger returns fixed counts and remembers the window it was asked for
type stubLedger struct {
	counts   models.ResultCounts
	err      error
	from, to time.Time
	calls    int
}

func (s *stubLedger) CountByResult(ctx context.Context, from, to time.Time) (models.ResultCounts, error) {
	s.calls++
	s.from, s.to = from, to
	return s.counts, s.err
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, johannesburg)
}

func TestEngine_SummarizeScenario(t *testing.T) {
	store := &stubLedger{counts: models.ResultCounts{Total: 10, ITM: 7, OTM: 3}}
	engine := NewEngine(store, WithLocation(johannesburg))

	summary, err := engine.Summarize(context.Background(), day(2024, 6, 3), day(2024, 6, 3))
	require.NoError(t, err)

	assert.Equal(t, int64(10), summary.TotalTrades)
	assert.Equal(t, int64(7), summary.ITMCount)
	assert.Equal(t, int64(3), summary.OTMCount)
	assert.Equal(t, "70.00", summary.WinRatePercent())

	// Half-open window over the local day
	assert.True(t, store.from.Equal(day(2024, 6, 3)))
	assert.True(t, store.to.Equal(day(2024, 6, 4)))

	msg := engine.Render(summary, engine.Label(models.RangeDaily))
	assert.Contains(t, msg, "ITM: 7")
	assert.Contains(t, msg, "OTM: 3")
	assert.Contains(t, msg, "70")
}

func TestEngine_SummarizeAgainstSQLiteLedger(t *testing.T) {
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { config.CloseDB(db) })
	require.NoError(t, models.MigrateTradingModels(db))

	base := day(2024, 6, 3)
	var trades []models.BinaryOptionTrade
	for i := 0; i < 10; i++ {
		open := base.Add(time.Duration(8+i) * time.Hour)
		closed := open.Add(time.Minute)
		result := models.ResultITM
		if i >= 7 {
			result = models.ResultOTM
		}
		trades = append(trades, models.BinaryOptionTrade{Symbol: "GBPUSD", Direction: "PUT", OpenTime: open, CloseTime: &closed, Result: result})
	}
	// An open trade with a result already filled in must still be ignored
	trades = append(trades, models.BinaryOptionTrade{Symbol: "GBPUSD", OpenTime: base.Add(20 * time.Hour), Result: models.ResultITM})
	require.NoError(t, db.Create(&trades).Error)

	engine := NewEngine(ledger.NewGormStore(db), WithLocation(johannesburg))
	summary, err := engine.Summarize(context.Background(), base, base)
	require.NoError(t, err)
	assert.Equal(t, int64(10), summary.TotalTrades)
	assert.Equal(t, int64(7), summary.ITMCount)
	assert.Equal(t, "70.00", summary.WinRatePercent())
}

func TestEngine_WinRate(t *testing.T) {
	tests := []struct {
		name   string
		counts models.ResultCounts
		want   string
	}{
		{name: "no trades", counts: models.ResultCounts{}, want: "0.00"},
		{name: "all wins", counts: models.ResultCounts{Total: 4, ITM: 4}, want: "100.00"},
		{name: "all losses", counts: models.ResultCounts{Total: 4, OTM: 4}, want: "0.00"},
		{name: "two thirds", counts: models.ResultCounts{Total: 3, ITM: 2, OTM: 1}, want: "66.67"},
		{name: "one third", counts: models.ResultCounts{Total: 3, ITM: 1, OTM: 2}, want: "33.33"},
		{name: "void trades lower the rate", counts: models.ResultCounts{Total: 8, ITM: 6, OTM: 1}, want: "75.00"},
		// Midpoints round to the even neighbour
		{name: "midpoint rounds down to even", counts: models.ResultCounts{Total: 32, ITM: 1, OTM: 31}, want: "3.12"},
		{name: "midpoint rounds up to even", counts: models.ResultCounts{Total: 32, ITM: 3, OTM: 29}, want: "9.38"},
		{name: "midpoint above ten", counts: models.ResultCounts{Total: 32, ITM: 5, OTM: 27}, want: "15.62"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(&stubLedger{counts: tt.counts})
			summary, err := engine.Summarize(context.Background(), day(2024, 6, 3), day(2024, 6, 3))
			require.NoError(t, err)
			assert.Equal(t, tt.want, summary.WinRatePercent())
			assert.True(t, summary.WinRate.GreaterThanOrEqual(decimal.Zero))
			assert.True(t, summary.WinRate.LessThanOrEqual(hundred))
		})
	}
}

func TestEngine_ResidualPolicy(t *testing.T) {
	counts := models.ResultCounts{Total: 10, ITM: 6, OTM: 2} // two void trades

	inclusive, err := NewEngine(&stubLedger{counts: counts}).
		Summarize(context.Background(), day(2024, 6, 3), day(2024, 6, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(10), inclusive.TotalTrades)
	assert.Equal(t, "60.00", inclusive.WinRatePercent())

	exclusive, err := NewEngine(&stubLedger{counts: counts}, WithExcludeUnresolved(true)).
		Summarize(context.Background(), day(2024, 6, 3), day(2024, 6, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(8), exclusive.TotalTrades)
	assert.Equal(t, "75.00", exclusive.WinRatePercent())
}

func TestEngine_SummarizeLedgerDown(t *testing.T) {
	store := &stubLedger{err: errors.New("dial tcp: connection refused")}
	engine := NewEngine(store)

	summary, err := engine.Summarize(context.Background(), day(2024, 6, 3), day(2024, 6, 3))
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Zero(t, summary.TotalTrades)
	assert.Equal(t, models.ReportSummary{}, summary)
}

func TestEngine_SummarizeRejectsInconsistentCounts(t *testing.T) {
	engine := NewEngine(&stubLedger{counts: models.ResultCounts{Total: 2, ITM: 2, OTM: 1}})
	_, err := engine.Summarize(context.Background(), day(2024, 6, 3), day(2024, 6, 3))
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestEngine_SummarizeInvalidRange(t *testing.T) {
	store := &stubLedger{}
	_, err := NewEngine(store).Summarize(context.Background(), day(2024, 6, 7), day(2024, 6, 3))
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Zero(t, store.calls)
}

func TestEngine_WeeklyRangeStableAcrossWeek(t *testing.T) {
	engine := NewEngine(&stubLedger{}, WithLocation(johannesburg))
	want := models.DateRange{Start: day(2024, 6, 3), End: day(2024, 6, 7)}

	// Monday 3 June through Sunday 9 June 2024
	for d := 3; d <= 9; d++ {
		ref := day(2024, 6, d).Add(13 * time.Hour)
		got := engine.WeeklyRange(&ref)
		assert.True(t, want.Start.Equal(got.Start), "start for %s", ref.Weekday())
		assert.True(t, want.End.Equal(got.End), "end for %s", ref.Weekday())
		assert.Equal(t, time.Monday, got.Start.Weekday())
		assert.Equal(t, time.Friday, got.End.Weekday())
	}
}

func TestEngine_WeeklyRangeAcrossMonthBoundary(t *testing.T) {
	engine := NewEngine(&stubLedger{}, WithLocation(johannesburg))
	ref := day(2024, 1, 1) // Monday
	got := engine.WeeklyRange(&ref)
	assert.Equal(t, "2024-01-01 to 2024-01-05", got.String())

	ref = day(2023, 12, 31) // Sunday
	got = engine.WeeklyRange(&ref)
	assert.Equal(t, "2023-12-25 to 2023-12-29", got.String())
}

func TestEngine_DailyRange(t *testing.T) {
	now := time.Date(2024, 6, 3, 22, 30, 0, 0, time.UTC) // already 4 June in Johannesburg
	engine := NewEngine(&stubLedger{}, WithLocation(johannesburg), WithClock(func() time.Time { return now }))

	today := engine.DailyRange(nil)
	assert.True(t, today.SingleDay())
	assert.Equal(t, "2024-06-04", today.String())

	ref := day(2024, 6, 3).Add(21*time.Hour + 58*time.Minute)
	assert.Equal(t, "2024-06-03", engine.DailyRange(&ref).String())
}

func TestEngine_Range(t *testing.T) {
	engine := NewEngine(&stubLedger{}, WithLocation(johannesburg))
	ref := day(2024, 6, 5)

	daily, err := engine.Range(models.RangeDaily, &ref)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-05", daily.String())

	weekly, err := engine.Range(models.RangeWeekly, &ref)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-03 to 2024-06-07", weekly.String())

	_, err = engine.Range(models.RangeKind("MONTHLY"), &ref)
	assert.Error(t, err)
}

func TestEngine_Render(t *testing.T) {
	engine := NewEngine(&stubLedger{}, WithLocation(johannesburg), WithLabels("Daily", "Weekly"))

	t.Run("single day", func(t *testing.T) {
		summary, err := NewEngine(&stubLedger{counts: models.ResultCounts{Total: 10, ITM: 7, OTM: 3}}, WithLocation(johannesburg)).
			Summarize(context.Background(), day(2024, 6, 3), day(2024, 6, 3))
		require.NoError(t, err)

		msg := engine.Render(summary, engine.Label(models.RangeDaily))
		assert.Equal(t, "📊Daily for 2024-06-03\n✅ITM: 7\n❌OTM: 3\n📊Win % rate: 70.00%", msg)
	})

	t.Run("span", func(t *testing.T) {
		summary, err := NewEngine(&stubLedger{}, WithLocation(johannesburg)).
			Summarize(context.Background(), day(2024, 6, 3), day(2024, 6, 7))
		require.NoError(t, err)

		msg := engine.Render(summary, engine.Label(models.RangeWeekly))
		lines := strings.Split(msg, "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, "📊Weekly:(2024-06-03 to 2024-06-07)", lines[0])
		assert.Equal(t, "✅ITM: 0", lines[1])
		assert.Equal(t, "❌OTM: 0", lines[2])
		assert.Equal(t, "📊Win % rate: 0.00%", lines[3])
	})
}

func TestEngine_DefaultLabels(t *testing.T) {
	engine := NewEngine(&stubLedger{}, WithLabels("", ""))
	assert.Equal(t, DefaultDailyLabel, engine.Label(models.RangeDaily))
	assert.Equal(t, DefaultWeeklyLabel, engine.Label(models.RangeWeekly))
}
