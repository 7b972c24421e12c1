// Package settings owns the notifier enable/disable switches: the durable store and the
// read-through, write-through cache every dispatch decision goes through.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"signal_report_backend/metrics"
	"signal_report_backend/models"
)

// DefaultFreshness is how long a snapshot answers IsEnabled before a read forces a refresh
const DefaultFreshness = 30 * time.Second

var (
	// ErrStoreUnavailable wraps any failure to reach the settings store
	ErrStoreUnavailable = errors.New("notifier settings store unavailable")
	// ErrUnknownChannel is reported by operator surfaces when Update matched no row
	ErrUnknownChannel = errors.New("unknown notifier channel")
)

// snapshot is immutable once published
type snapshot struct {
	ordered   []models.NotifierSetting
	byName    map[string]int
	fetchedAt time.Time
}

func newSnapshot(rows []models.NotifierSetting, fetchedAt time.Time) *snapshot {
	s := &snapshot{
		ordered:   make([]models.NotifierSetting, len(rows)),
		byName:    make(map[string]int, len(rows)),
		fetchedAt: fetchedAt,
	}
	copy(s.ordered, rows)
	for i, row := range s.ordered {
		s.byName[row.NotifierName] = i
	}
	return s
}

// withUpdate returns a copy of s with one entry changed. The freshness timestamp is kept.
func (s *snapshot) withUpdate(name string, enabled bool, updatedBy string, at time.Time) *snapshot {
	next := newSnapshot(s.ordered, s.fetchedAt)
	i, ok := next.byName[name]
	if !ok {
		// The store knows the channel but our snapshot predates it; the next refresh fills the rest.
		next.ordered = append(next.ordered, models.NotifierSetting{NotifierName: name})
		i = len(next.ordered) - 1
		next.byName[name] = i
	}
	by := updatedBy
	next.ordered[i].IsEnabled = enabled
	next.ordered[i].LastUpdated = at
	next.ordered[i].UpdatedBy = &by
	return next
}

// Cache answers "is channel X enabled?" from memory and keeps itself fresh
type Cache struct {
	store     Store
	freshness time.Duration
	now       func() time.Time
	metrics   *metrics.Registry

	// mu serialises writers so a refresh never interleaves with a write-through
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// Option customises a Cache
type Option func(*Cache)

// WithFreshness overrides the freshness window
func WithFreshness(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.freshness = d
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records refresh results
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates an empty cache; the first read triggers a load
func NewCache(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		freshness: DefaultFreshness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snap.Store(newSnapshot(nil, time.Time{}))
	return c
}

// GetAll fetches every setting from the store and replaces the snapshot.
// On failure the previous snapshot stays in place.
func (c *Cache) GetAll(ctx context.Context) ([]models.NotifierSetting, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

func (c *Cache) loadLocked(ctx context.Context) ([]models.NotifierSetting, error) {
	rows, err := c.store.ListAll(ctx)
	if err != nil {
		c.metrics.ObserveRefresh(false)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.snap.Store(newSnapshot(rows, c.now()))
	c.metrics.ObserveRefresh(true)

	out := make([]models.NotifierSetting, len(rows))
	copy(out, rows)
	return out, nil
}

// Update writes through to the store and, once the write is confirmed, applies it to the snapshot.
// It returns false when no channel has that name.
func (c *Cache) Update(ctx context.Context, name string, enabled bool, updatedBy string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	affected, err := c.store.UpsertEnabled(ctx, name, enabled, updatedBy)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return false, nil
	}

	c.snap.Store(c.snap.Load().withUpdate(name, enabled, updatedBy, c.now().UTC()))

	state := "DISABLED"
	if enabled {
		state = "ENABLED"
	}
	log.Info().Str("notifier", name).Str("state", state).Str("by", updatedBy).Msg("Notifier setting updated")
	return true, nil
}

// IsEnabled answers from the snapshot, refreshing it first when it is older than the freshness window.
// A failed refresh falls back to the stale snapshot. Unknown channels are disabled.
func (c *Cache) IsEnabled(ctx context.Context, name string) bool {
	if c.stale() {
		c.refreshIfStale(ctx, name)
	}

	snap := c.snap.Load()
	i, ok := snap.byName[name]
	return ok && snap.ordered[i].IsEnabled
}

// Snapshot returns the cached settings without touching the store
func (c *Cache) Snapshot() []models.NotifierSetting {
	snap := c.snap.Load()
	out := make([]models.NotifierSetting, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// FetchedAt is when the snapshot was last loaded from the store; zero before the first load
func (c *Cache) FetchedAt() time.Time {
	return c.snap.Load().fetchedAt
}

// refreshIfStale reloads once even when many readers notice staleness at the same time
func (c *Cache) refreshIfStale(ctx context.Context, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stale() {
		return
	}
	if _, err := c.loadLocked(ctx); err != nil {
		log.Warn().Err(err).Str("notifier", name).Msg("Settings refresh failed, answering from stale snapshot")
	}
}

func (c *Cache) stale() bool {
	fetchedAt := c.snap.Load().fetchedAt
	return fetchedAt.IsZero() || c.now().Sub(fetchedAt) > c.freshness
}
