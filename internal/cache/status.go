// Package cache holds the Redis-backed batch status cache.
//
// Finished batches are looked up by clients polling
// GET /file-upload/status/{batch_id} long after the process that ran them
// has dropped them from memory. Caching the final status in Redis keeps
// those polls off PostgreSQL and lets any replica answer them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/InsuranceDashboard/internal/config"
	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ingest:batch:"

// RunningTTL bounds how long a non-final status may be served from the
// cache, so a batch whose process died is not reported running for a day.
const RunningTTL = time.Minute

// StatusCache implements core.StatusCache on Redis.
type StatusCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*StatusCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewWithClient(rdb, cfg.StatusTTL), nil
}

// NewWithClient wraps an existing client. ttl applies to finished batches.
func NewWithClient(rdb redis.UniversalClient, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusCache{rdb: rdb, ttl: ttl}
}

// GetStatus returns a cached status. found is false on a cache miss.
func (c *StatusCache) GetStatus(ctx context.Context, batchID string) (core.BatchStatus, bool, error) {
	data, err := c.rdb.Get(ctx, key(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.BatchStatus{}, false, nil
	}
	if err != nil {
		return core.BatchStatus{}, false, fmt.Errorf("get batch status: %w", err)
	}

	var st core.BatchStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return core.BatchStatus{}, false, fmt.Errorf("decode batch status: %w", err)
	}
	if st.Errors == nil {
		st.Errors = []core.RowError{}
	}
	return st, true, nil
}

// SetStatus stores a status snapshot.
func (c *StatusCache) SetStatus(ctx context.Context, st core.BatchStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode batch status: %w", err)
	}
	if err := c.rdb.Set(ctx, key(st.BatchID), data, c.ttlFor(st)).Err(); err != nil {
		return fmt.Errorf("set batch status: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *StatusCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *StatusCache) Close() error {
	return c.rdb.Close()
}

func (c *StatusCache) ttlFor(st core.BatchStatus) time.Duration {
	if st.Done() {
		return c.ttl
	}
	return RunningTTL
}

func key(batchID string) string {
	return keyPrefix + batchID
}
