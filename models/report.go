package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in reports and query parameters
const DateLayout = "2006-01-02"

// RangeKind selects the period a report covers
type RangeKind string

const (
	RangeDaily  RangeKind = "DAILY"
	RangeWeekly RangeKind = "WEEKLY"
)

// ParseRangeKind accepts "daily"/"weekly" in any case
func ParseRangeKind(s string) (RangeKind, error) {
	switch RangeKind(strings.ToUpper(strings.TrimSpace(s))) {
	case RangeDaily:
		return RangeDaily, nil
	case RangeWeekly:
		return RangeWeekly, nil
	}
	return "", fmt.Errorf("unknown report range %q (want daily or weekly)", s)
}

// DateRange is an inclusive span of calendar days. Start and End are midnight in the reporting timezone.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SingleDay reports whether the range covers exactly one date
func (r DateRange) SingleDay() bool {
	return r.Start.Format(DateLayout) == r.End.Format(DateLayout)
}

func (r DateRange) String() string {
	if r.SingleDay() {
		return r.Start.Format(DateLayout)
	}
	return r.Start.Format(DateLayout) + " to " + r.End.Format(DateLayout)
}

// ReportSummary is derived from the ledger and never persisted
type ReportSummary struct {
	RangeStart  time.Time       `json:"-"`
	RangeEnd    time.Time       `json:"-"`
	TotalTrades int64           `json:"total_trades"`
	ITMCount    int64           `json:"itm_count"`
	OTMCount    int64           `json:"otm_count"`
	WinRate     decimal.Decimal `json:"-"`
}

// WinRatePercent renders the win rate with exactly two fractional digits
func (s ReportSummary) WinRatePercent() string {
	return s.WinRate.StringFixed(2)
}

// ScheduledJob is a calendar trigger loaded from static configuration
type ScheduledJob struct {
	ID             string     `yaml:"id" json:"id"`
	CronExpression string     `yaml:"cron" json:"cron"`
	Timezone       string     `yaml:"timezone" json:"timezone"`
	Range          RangeKind  `yaml:"range" json:"range"`
	LastFiredAt    *time.Time `yaml:"-" json:"last_fired_at,omitempty"`
}

// DispatchStatus is the per-channel result of one job run
type DispatchStatus string

const (
	StatusSkippedDisabled DispatchStatus = "SKIPPED_DISABLED"
	StatusSent            DispatchStatus = "SENT"
	StatusFailed          DispatchStatus = "FAILED"
)

// DispatchOutcome is produced once per run per known channel
type DispatchOutcome struct {
	RunID       string         `json:"run_id"`
	JobID       string         `json:"job_id"`
	ChannelName string         `json:"channel"`
	Status      DispatchStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	Ack         string         `json:"ack,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
