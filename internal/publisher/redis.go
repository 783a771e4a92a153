// Package publisher pushes scan results to Redis for downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"arbscan/internal/metrics"
	"arbscan/internal/scanner"
)

// snapshotTTL bounds how long a latest-snapshot key outlives the scanner.
const snapshotTTL = 5 * time.Minute

// RedisPublisher publishes scan snapshots over Pub/Sub and keeps the
// latest snapshot in a plain key for late joiners.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisPublisher{client: client, channel: channel}, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// PublishSnapshot sends one scan result to the configured channel and
// refreshes the latest-snapshot key. Pub/Sub delivery is best-effort; the
// key write is what late consumers rely on.
func (p *RedisPublisher) PublishSnapshot(ctx context.Context, snap scanner.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		metrics.PublishErrors.WithLabelValues(p.channel).Inc()
		return fmt.Errorf("publish: %w", err)
	}
	if err := p.client.Set(ctx, p.channel+":latest", data, snapshotTTL).Err(); err != nil {
		metrics.PublishErrors.WithLabelValues(p.channel).Inc()
		return fmt.Errorf("set latest: %w", err)
	}
	return nil
}
