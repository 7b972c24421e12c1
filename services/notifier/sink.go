// Package notifier delivers rendered reports to external channels.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured means a channel is known but has no sink behind it
	ErrNotConfigured = errors.New("channel not configured")
	// ErrClosed is returned by a sink used after Close
	ErrClosed = errors.New("sink closed")
)

// Ack is a channel's receipt for a delivered message
type Ack struct {
	Reference string
	At        time.Time
}

func (a Ack) String() string {
	return a.Reference
}

// Sink sends text to one channel
type Sink interface {
	Name() string
	Send(ctx context.Context, text string) (Ack, error)
}

// Closer is implemented by sinks that hold connections
type Closer interface {
	Close() error
}

// SendError scopes a delivery failure to one channel
type SendError struct {
	Channel string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// wrapSendError attaches the channel name unless err already carries one
func wrapSendError(channel string, err error) error {
	if err == nil {
		return nil
	}
	var se *SendError
	if errors.As(err, &se) {
		return err
	}
	return &SendError{Channel: channel, Err: err}
}

// Registry looks sinks up by channel name
type Registry struct {
	sinks map[string]Sink
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]Sink)}
}

// Add registers sink under its name, replacing any previous sink with that name
func (r *Registry) Add(sink Sink) {
	name := sink.Name()
	if _, ok := r.sinks[name]; !ok {
		r.order = append(r.order, name)
	}
	r.sinks[name] = sink
}

// Get returns the sink for name
func (r *Registry) Get(name string) (Sink, bool) {
	s, ok := r.sinks[name]
	return s, ok
}

// Names lists registered channels in registration order
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
