package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

type heldCloser struct {
	name   string
	closer Closer
}

// Keeper owns the lifetime of sinks that hold connections.
// It does nothing while the process runs and closes them, newest first, once the context ends.
type Keeper struct {
	mu      sync.Mutex
	held    []heldCloser
	running atomic.Bool
	closed  atomic.Bool
}

// KeeperStatus is the operator view of the keeper
type KeeperStatus struct {
	Running bool     `json:"running"`
	Closed  bool     `json:"closed"`
	Held    []string `json:"held"`
}

// NewKeeper creates an empty keeper
func NewKeeper() *Keeper {
	return &Keeper{}
}

// Hold registers c to be closed on shutdown
func (k *Keeper) Hold(name string, c Closer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.held = append(k.held, heldCloser{name: name, closer: c})
}

// Run blocks until ctx is done, then closes everything held in reverse order
func (k *Keeper) Run(ctx context.Context) error {
	k.running.Store(true)
	defer k.running.Store(false)

	<-ctx.Done()
	return k.closeAll()
}

// Status lists what the keeper holds
func (k *Keeper) Status() KeeperStatus {
	k.mu.Lock()
	defer k.mu.Unlock()
	names := make([]string, len(k.held))
	for i, h := range k.held {
		names[i] = h.name
	}
	return KeeperStatus{Running: k.running.Load(), Closed: k.closed.Load(), Held: names}
}

func (k *Keeper) closeAll() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}

	k.mu.Lock()
	held := make([]heldCloser, len(k.held))
	copy(held, k.held)
	k.mu.Unlock()

	var errs []error
	for i := len(held) - 1; i >= 0; i-- {
		h := held[i]
		if err := h.closer.Close(); err != nil {
			log.Error().Err(err).Str("channel", h.name).Msg("Failed to close channel connection")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		log.Info().Str("channel", h.name).Msg("Channel connection closed")
	}
	return errors.Join(errs...)
}
