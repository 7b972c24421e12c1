package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"signal_report_backend/models"
)

// RedisSink publishes reports on a Redis pub/sub channel for internal consumers
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink wraps an existing client
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// DialRedis builds a sink for addr. An unreachable server is only logged:
// the client dials again on every publish, so the channel recovers with the server.
func DialRedis(ctx context.Context, addr, channel string) (*RedisSink, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis: %w", ErrNotConfigured)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		// A missed report is retried by the next run
		MaxRetries: 1,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Redis unreachable, will retry on next report")
	} else {
		log.Info().Str("addr", addr).Str("channel", channel).Msg("Redis sink ready")
	}
	return NewRedisSink(client, channel), nil
}

func (s *RedisSink) Name() string { return models.ChannelRedis }

// Send publishes text; the ack records how many subscribers received it
func (s *RedisSink) Send(ctx context.Context, text string) (Ack, error) {
	receivers, err := s.client.Publish(ctx, s.channel, text).Result()
	if err != nil {
		return Ack{}, &SendError{Channel: s.Name(), Err: err}
	}
	return Ack{Reference: fmt.Sprintf("%d subscribers", receivers), At: time.Now().UTC()}, nil
}

// Close releases the connection pool
func (s *RedisSink) Close() error {
	return s.client.Close()
}
