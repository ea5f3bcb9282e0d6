package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/slipwayci/slipway/pkg/domain"
)

// ArtifactCache implements ports.ArtifactCache using Redis, shared
// across runs and hosts. Redis owns expiry via TTL, so run leases are a
// no-op here; eviction pressure is handled by the server, not mid-run by
// this adapter.
type ArtifactCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewArtifactCache creates a Redis-backed artifact cache. Entries expire
// after ttl; a zero ttl keeps them until explicitly invalidated.
func NewArtifactCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ArtifactCache {
	return &ArtifactCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Get returns the artifact stored under key.
func (c *ArtifactCache) Get(ctx context.Context, runID, key string) (*domain.Artifact, error) {
	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var artifact domain.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return &artifact, nil
}

// Put stores an artifact under key. A differing artifact already stored
// under the same key is a fingerprint collision.
func (c *ArtifactCache) Put(ctx context.Context, key string, artifact *domain.Artifact) error {
	existing, err := c.Get(ctx, "", key)
	if err != nil && err != domain.ErrCacheMiss {
		return err
	}
	if existing != nil {
		if existing.Digest != artifact.Digest {
			return &domain.FingerprintCollisionError{Key: key}
		}
		// Identical re-write: refresh the TTL only.
		if c.ttl > 0 {
			if err := c.client.Expire(ctx, cacheKey(key), c.ttl).Err(); err != nil {
				return fmt.Errorf("failed to refresh cache entry: %w", err)
			}
		}
		return nil
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	c.logger.Debug("cache entry saved",
		zap.String("key", key),
		zap.String("ref", artifact.Ref))

	return nil
}

// Invalidate drops every entry whose key starts with prefix.
func (c *ArtifactCache) Invalidate(ctx context.Context, prefix string) error {
	pattern := cacheKey(prefix) + "*"

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache entries: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return nil
}

// ReleaseRun is a no-op: expiry is TTL-based on the server side.
func (c *ArtifactCache) ReleaseRun(runID string) {}

// cacheKey returns the Redis key for a cache entry.
func cacheKey(key string) string {
	return fmt.Sprintf("slipway:cache:%s", key)
}
