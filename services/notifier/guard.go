package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"signal_report_backend/metrics"
)

// GuardConfig bounds how a single channel may be used
type GuardConfig struct {
	// Timeout caps one send, including time spent waiting for the rate limiter
	Timeout time.Duration
	// RatePerMinute limits sends to the channel; zero disables limiting
	RatePerMinute int
	// FailureThreshold consecutive failures open the breaker
	FailureThreshold uint32
	// OpenTimeout is how long an open breaker rejects sends before probing again
	OpenTimeout time.Duration
	Metrics     *metrics.Registry
}

// Guard wraps a Sink with a timeout, a rate limiter and a circuit breaker
type Guard struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Registry
}

// NewGuard protects sink according to cfg
func NewGuard(sink Sink, cfg GuardConfig) *Guard {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}

	g := &Guard{sink: sink, timeout: cfg.Timeout, metrics: cfg.Metrics}
	if cfg.RatePerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}

	threshold := cfg.FailureThreshold
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        sink.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("channel", name).Str("from", from.String()).Str("to", to.String()).Msg("Channel breaker state changed")
		},
	})
	return g
}

func (g *Guard) Name() string { return g.sink.Name() }

// Send delivers text through the wrapped sink
func (g *Guard) Send(ctx context.Context, text string) (Ack, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Ack{}, &SendError{Channel: g.Name(), Err: fmt.Errorf("rate limited: %w", err)}
		}
	}

	start := time.Now()
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.sink.Send(ctx, text)
	})
	g.metrics.ObserveSend(g.Name(), time.Since(start))
	if err != nil {
		return Ack{}, wrapSendError(g.Name(), err)
	}
	return res.(Ack), nil
}

// State reports the breaker state: closed, half-open or open
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Unwrap returns the protected sink
func (g *Guard) Unwrap() Sink {
	return g.sink
}

// Close closes the wrapped sink when it holds connections
func (g *Guard) Close() error {
	if c, ok := g.sink.(Closer); ok {
		return c.Close()
	}
	return nil
}
