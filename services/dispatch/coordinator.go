// Package dispatch runs one report job: build the message once, then fan it out to every enabled channel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signal_report_backend/metrics"
	"signal_report_backend/models"
	"signal_report_backend/services/notifier"
)

// DefaultSendTimeout bounds one channel send when none is configured
const DefaultSendTimeout = 15 * time.Second

// ErrReportUnavailable is the job-level failure raised before any channel is contacted
var ErrReportUnavailable = errors.New("report could not be generated")

// Reporter builds the summary and message for a run
type Reporter interface {
	Range(kind models.RangeKind, ref *time.Time) (models.DateRange, error)
	Summarize(ctx context.Context, start, end time.Time) (models.ReportSummary, error)
	Render(summary models.ReportSummary, label string) string
	Label(kind models.RangeKind) string
}

// SettingsReader answers whether a channel may receive reports
type SettingsReader interface {
	IsEnabled(ctx context.Context, name string) bool
}

// SinkLookup finds the sink behind a channel name
type SinkLookup interface {
	Get(name string) (notifier.Sink, bool)
}

// Config holds the coordinator's static settings
type Config struct {
	// Channels is the ordered, static list every run walks
	Channels    []string
	SendTimeout time.Duration
	Metrics     *metrics.Registry
}

// Coordinator executes report jobs
type Coordinator struct {
	reports     Reporter
	settings    SettingsReader
	sinks       SinkLookup
	channels    []string
	sendTimeout time.Duration
	metrics     *metrics.Registry
	now         func() time.Time

	mu   sync.RWMutex
	last map[string][]models.DispatchOutcome
}

// NewCoordinator wires the collaborators of a run
func NewCoordinator(reports Reporter, settings SettingsReader, sinks SinkLookup, cfg Config) *Coordinator {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	channels := make([]string, len(cfg.Channels))
	copy(channels, cfg.Channels)

	return &Coordinator{
		reports:     reports,
		settings:    settings,
		sinks:       sinks,
		channels:    channels,
		sendTimeout: cfg.SendTimeout,
		metrics:     cfg.Metrics,
		now:         time.Now,
		last:        make(map[string][]models.DispatchOutcome),
	}
}

// Channels returns the channel list in dispatch order
func (c *Coordinator) Channels() []string {
	out := make([]string, len(c.channels))
	copy(out, c.channels)
	return out
}

// RunJob dispatches the report for the current period of kind
func (c *Coordinator) RunJob(ctx context.Context, jobID string, kind models.RangeKind) ([]models.DispatchOutcome, error) {
	return c.RunJobAt(ctx, jobID, kind, nil)
}

// RunJobAt dispatches the report for the period of kind containing ref.
// Channel failures are reported as outcomes; only a report that cannot be built returns an error.
func (c *Coordinator) RunJobAt(ctx context.Context, jobID string, kind models.RangeKind, ref *time.Time) ([]models.DispatchOutcome, error) {
	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Str("job", jobID).Str("range", string(kind)).Logger()

	summary, message, err := c.Preview(ctx, kind, ref)
	if err != nil {
		logger.Error().Err(err).Msg("Report generation failed, no channel contacted")
		return nil, fmt.Errorf("%w: %w", ErrReportUnavailable, err)
	}
	logger.Info().
		Int64("total", summary.TotalTrades).
		Int64("itm", summary.ITMCount).
		Int64("otm", summary.OTMCount).
		Str("win_rate", summary.WinRatePercent()).
		Msg("Report generated")

	outcomes := make([]models.DispatchOutcome, len(c.channels))
	var wg sync.WaitGroup
	for i, name := range c.channels {
		base := models.DispatchOutcome{RunID: runID, JobID: jobID, ChannelName: name}

		if !c.settings.IsEnabled(ctx, name) {
			base.Status = models.StatusSkippedDisabled
			base.Timestamp = c.now().UTC()
			outcomes[i] = base
			continue
		}

		sink, ok := c.sinks.Get(name)
		if !ok {
			base.Status = models.StatusFailed
			base.Error = (&notifier.SendError{Channel: name, Err: notifier.ErrNotConfigured}).Error()
			base.Timestamp = c.now().UTC()
			outcomes[i] = base
			continue
		}

		wg.Add(1)
		go func(i int, sink notifier.Sink, base models.DispatchOutcome) {
			defer wg.Done()
			outcomes[i] = c.send(ctx, sink, message, base)
		}(i, sink, base)
	}
	wg.Wait()

	for _, o := range outcomes {
		c.metrics.ObserveOutcome(o.ChannelName, string(o.Status))
		logOutcome(logger, o)
	}

	c.mu.Lock()
	c.last[jobID] = outcomes
	c.mu.Unlock()
	OutcomeCollectorFrom(ctx).Record(outcomes)

	return outcomes, nil
}

// Preview builds the summary and message without contacting any channel
func (c *Coordinator) Preview(ctx context.Context, kind models.RangeKind, ref *time.Time) (models.ReportSummary, string, error) {
	r, err := c.reports.Range(kind, ref)
	if err != nil {
		return models.ReportSummary{}, "", err
	}
	summary, err := c.reports.Summarize(ctx, r.Start, r.End)
	if err != nil {
		return models.ReportSummary{}, "", err
	}
	return summary, c.reports.Render(summary, c.reports.Label(kind)), nil
}

// LastOutcomes returns the outcomes of the most recent completed run of jobID
func (c *Coordinator) LastOutcomes(jobID string) []models.DispatchOutcome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	prev := c.last[jobID]
	out := make([]models.DispatchOutcome, len(prev))
	copy(out, prev)
	return out
}

// send delivers to one channel. The send outlives caller cancellation and is bounded by the send timeout.
func (c *Coordinator) send(ctx context.Context, sink notifier.Sink, message string, outcome models.DispatchOutcome) (result models.DispatchOutcome) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = outcome
			result.Status = models.StatusFailed
			result.Error = (&notifier.SendError{Channel: outcome.ChannelName, Err: fmt.Errorf("panic: %v", r)}).Error()
			result.Timestamp = c.now().UTC()
		}
	}()

	ack, err := sink.Send(sendCtx, message)
	outcome.Timestamp = c.now().UTC()
	if err != nil {
		outcome.Status = models.StatusFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = models.StatusSent
	outcome.Ack = ack.String()
	return outcome
}

func logOutcome(logger zerolog.Logger, o models.DispatchOutcome) {
	var event *zerolog.Event
	switch o.Status {
	case models.StatusFailed:
		event = logger.Warn().Str("error", o.Error)
	case models.StatusSent:
		event = logger.Info().Str("ack", o.Ack)
	default:
		event = logger.Debug()
	}
	event.Str("channel", o.ChannelName).Str("status", string(o.Status)).Msg("Dispatch outcome")
}
