package livefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher forwards alert envelopes to a Redis channel so consumers
// outside this process can follow the live feed. Publish failures are logged
// and swallowed; Redis being down never stalls detection.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisPublisher connects to redisURL (redis://...). Returns an error
// only for an unparseable URL; an unreachable server surfaces later as
// logged publish failures.
func NewRedisPublisher(redisURL, channel string, logger *slog.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  redis.NewClient(opts),
		channel: channel,
		logger:  logger.With("component", "redis_feed"),
	}, nil
}

// Publish sends the envelope to the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Warn("serialize alert envelope", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("redis publish failed", "channel", p.channel, "error", err)
	}
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
