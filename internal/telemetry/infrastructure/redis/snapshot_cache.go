// Package redis mirrors the latest accepted payload into a hot key-value
// store so external dashboards can read "current state" without touching
// Postgres. The cache is advisory: the event store stays the source of
// truth and cache failures never fail ingestion.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	latestKeyPrefix = "sensor:latest:"
	latestGlobalKey = "sensor:latest"

	// Stale devices age out of the cache on their own.
	snapshotTTL = 24 * time.Hour
)

// SnapshotCache stores the latest payload per device plus a global slot.
type SnapshotCache struct {
	client *goredis.Client
}

// NewSnapshotCache connects and pings the cache.
func NewSnapshotCache(ctx context.Context, addr string) (*SnapshotCache, error) {
	if addr == "" {
		return nil, errors.New("snapshot cache: empty addr")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("snapshot cache: ping: %w", err)
	}
	return &SnapshotCache{client: client}, nil
}

// StoreLatest overwrites the device slot and the global slot.
func (c *SnapshotCache) StoreLatest(ctx context.Context, device string, raw []byte) error {
	if c == nil || c.client == nil {
		return errors.New("snapshot cache: nil client")
	}
	if err := c.client.Set(ctx, latestKeyPrefix+device, raw, snapshotTTL).Err(); err != nil {
		return err
	}
	return c.client.Set(ctx, latestGlobalKey, raw, snapshotTTL).Err()
}

// Close releases the connection.
func (c *SnapshotCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
