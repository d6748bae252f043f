// Package cache decorates read paths of the persistence layer with a Redis
// cache. Only read-only lookups are cached, with an explicit TTL; entities
// this core mutates are always read fresh from the backing repository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/persistence"
)

const keyPrefix = "quorum:snapshot:latest:"

// SnapshotCache wraps a SnapshotRepo, caching the latest-value lookup. All
// other calls pass straight through; Insert invalidates the target's entry.
type SnapshotCache struct {
	persistence.SnapshotRepo
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache wires the cache decorator.
func NewSnapshotCache(inner persistence.SnapshotRepo, client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{SnapshotRepo: inner, client: client, ttl: ttl}
}

// Insert writes through and invalidates the cached latest value so readers
// never see a stale head after a new observation lands.
func (c *SnapshotCache) Insert(ctx context.Context, snap domain.TargetSnapshot) error {
	if err := c.SnapshotRepo.Insert(ctx, snap); err != nil {
		return err
	}
	if err := c.client.Del(ctx, keyPrefix+snap.TargetID).Err(); err != nil {
		log.Warn().Str("target_id", snap.TargetID).Err(err).Msg("snapshot cache invalidation failed")
	}
	return nil
}

// Latest serves from cache when possible. Cache failures degrade to the
// backing repository; they are never surfaced to the caller.
func (c *SnapshotCache) Latest(ctx context.Context, targetID string) (*domain.TargetSnapshot, error) {
	key := keyPrefix + targetID
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var snap domain.TargetSnapshot
		if err := json.Unmarshal(payload, &snap); err == nil {
			return &snap, nil
		}
		log.Warn().Str("target_id", targetID).Msg("corrupt snapshot cache entry, refetching")
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Str("target_id", targetID).Err(err).Msg("snapshot cache read failed")
	}

	snap, err := c.SnapshotRepo.Latest(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(snap); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			log.Warn().Str("target_id", targetID).Err(err).Msg("snapshot cache write failed")
		}
	}
	return snap, nil
}

// NewClient builds a Redis client with the pool and timeout settings used
// across the service.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Ping verifies connectivity.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
