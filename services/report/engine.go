// Package report turns ledger counts into win-rate summaries and the message channels receive.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"signal_report_backend/models"
	"signal_report_backend/services/ledger"
)

var (
	// ErrLedgerUnavailable means the ledger could not be asked; it never means "no trades"
	ErrLedgerUnavailable = errors.New("trade ledger unavailable")
	// ErrInvalidRange is returned when the end date precedes the start date
	ErrInvalidRange = errors.New("report range ends before it starts")
)

const (
	DefaultDailyLabel  = "VIP signal report"
	DefaultWeeklyLabel = "Weekly VIP signal report"
)

var hundred = decimal.NewFromInt(100)

// Engine summarises the ledger for a date range in the reporting timezone
type Engine struct {
	ledger            ledger.Store
	loc               *time.Location
	now               func() time.Time
	excludeUnresolved bool
	labels            map[models.RangeKind]string
}

// Option customises an Engine
type Option func(*Engine)

// WithLocation sets the reporting timezone. Day boundaries are midnight in this zone.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithExcludeUnresolved makes TotalTrades count only ITM and OTM trades.
// By default every closed trade counts, so void trades lower the win rate.
func WithExcludeUnresolved(exclude bool) Option {
	return func(e *Engine) { e.excludeUnresolved = exclude }
}

// WithLabels overrides the message header for a range kind
func WithLabels(daily, weekly string) Option {
	return func(e *Engine) {
		if daily != "" {
			e.labels[models.RangeDaily] = daily
		}
		if weekly != "" {
			e.labels[models.RangeWeekly] = weekly
		}
	}
}

// NewEngine creates a report engine over store
func NewEngine(store ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		ledger: store,
		loc:    time.UTC,
		now:    time.Now,
		labels: map[models.RangeKind]string{
			models.RangeDaily:  DefaultDailyLabel,
			models.RangeWeekly: DefaultWeeklyLabel,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location is the reporting timezone
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Label is the message header used for kind
func (e *Engine) Label(kind models.RangeKind) string {
	return e.labels[kind]
}

// Summarize counts closed trades opened on any day from start to end inclusive
func (e *Engine) Summarize(ctx context.Context, start, end time.Time) (models.ReportSummary, error) {
	from := e.midnight(start)
	last := e.midnight(end)
	if last.Before(from) {
		return models.ReportSummary{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from.Format(models.DateLayout), last.Format(models.DateLayout))
	}

	counts, err := e.ledger.CountByResult(ctx, from, last.AddDate(0, 0, 1))
	if err != nil {
		return models.ReportSummary{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if counts.ITM < 0 || counts.OTM < 0 || counts.ITM+counts.OTM > counts.Total {
		return models.ReportSummary{}, fmt.Errorf("%w: inconsistent counts total=%d itm=%d otm=%d",
			ErrLedgerUnavailable, counts.Total, counts.ITM, counts.OTM)
	}

	total := counts.Total
	if e.excludeUnresolved {
		total = counts.ITM + counts.OTM
	}

	return models.ReportSummary{
		RangeStart:  from,
		RangeEnd:    last,
		TotalTrades: total,
		ITMCount:    counts.ITM,
		OTMCount:    counts.OTM,
		WinRate:     winRate(counts.ITM, total),
	}, nil
}

// DailyRange is the single day containing ref, or today when ref is nil
func (e *Engine) DailyRange(ref *time.Time) models.DateRange {
	day := e.midnight(e.reference(ref))
	return models.DateRange{Start: day, End: day}
}

// WeeklyRange is Monday to Friday of the ISO week containing ref, or the current week when ref is nil.
// Saturday and Sunday map back to the week that has just finished.
func (e *Engine) WeeklyRange(ref *time.Time) models.DateRange {
	day := e.midnight(e.reference(ref))
	sinceMonday := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -sinceMonday)
	return models.DateRange{Start: monday, End: monday.AddDate(0, 0, 4)}
}

// Range resolves the period for a range kind
func (e *Engine) Range(kind models.RangeKind, ref *time.Time) (models.DateRange, error) {
	switch kind {
	case models.RangeDaily:
		return e.DailyRange(ref), nil
	case models.RangeWeekly:
		return e.WeeklyRange(ref), nil
	}
	return models.DateRange{}, fmt.Errorf("unknown report range %q", kind)
}

// Render formats summary as the four line channel message: header, ITM, OTM, win rate
func (e *Engine) Render(summary models.ReportSummary, label string) string {
	r := models.DateRange{Start: summary.RangeStart, End: summary.RangeEnd}

	var b strings.Builder
	if r.SingleDay() {
		fmt.Fprintf(&b, "📊%s for %s\n", label, r.Start.Format(models.DateLayout))
	} else {
		fmt.Fprintf(&b, "📊%s:(%s to %s)\n", label, r.Start.Format(models.DateLayout), r.End.Format(models.DateLayout))
	}
	fmt.Fprintf(&b, "✅ITM: %d\n", summary.ITMCount)
	fmt.Fprintf(&b, "❌OTM: %d\n", summary.OTMCount)
	fmt.Fprintf(&b, "📊Win %% rate: %s%%", summary.WinRatePercent())
	return b.String()
}

func (e *Engine) reference(ref *time.Time) time.Time {
	if ref != nil {
		return *ref
	}
	return e.now()
}

// midnight drops the clock part of t as seen in the reporting timezone
func (e *Engine) midnight(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// winRate is ITM/total as a percentage rounded to two places, half to even; zero when nothing traded
func winRate(itm, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(itm).Mul(hundred).Div(decimal.NewFromInt(total)).RoundBank(2)
}
