package dispatch

import (
	"context"
	"sync"

	"signal_report_backend/models"
)

type collectorKey struct{}

// OutcomeCollector captures the outcomes of runs made with the context it is attached to.
// A manual trigger uses it to answer with its own run rather than whichever run finished last.
type OutcomeCollector struct {
	mu       sync.Mutex
	outcomes []models.DispatchOutcome
}

// WithOutcomeCollector attaches a new collector to ctx
func WithOutcomeCollector(ctx context.Context) (context.Context, *OutcomeCollector) {
	c := &OutcomeCollector{}
	return context.WithValue(ctx, collectorKey{}, c), c
}

// OutcomeCollectorFrom returns the collector attached to ctx, or nil
func OutcomeCollectorFrom(ctx context.Context) *OutcomeCollector {
	c, _ := ctx.Value(collectorKey{}).(*OutcomeCollector)
	return c
}

// Record appends the outcomes of one run. It is a no-op on a nil collector.
func (c *OutcomeCollector) Record(outcomes []models.DispatchOutcome) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcomes...)
}

// Outcomes returns everything recorded so far
func (c *OutcomeCollector) Outcomes() []models.DispatchOutcome {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.DispatchOutcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}
