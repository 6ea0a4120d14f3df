package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/survey"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SnapshotCache stores published versions. Versions never change once written,
// so entries need no invalidation.
type SnapshotCache interface {
	Get(ctx context.Context, formID uuid.UUID, version int) (*survey.FormVersion, bool, error)
	Set(ctx context.Context, v *survey.FormVersion) error
}

// redisKV is the part of the go-redis client the cache uses.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type RedisSnapshotCache struct {
	client redisKV
	ttl    time.Duration
	prefix string
}

// NewRedisSnapshotCache connects to cfg.Addr and verifies the connection.
func NewRedisSnapshotCache(ctx context.Context, cfg survey.CacheConfig) (*RedisSnapshotCache, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	zap.S().Infow("snapshot cache connected", "addr", cfg.Addr, "db", cfg.DB, "ttl", cfg.TTL)
	return newRedisSnapshotCache(client, cfg.TTL, cfg.Prefix), client, nil
}

func newRedisSnapshotCache(client redisKV, ttl time.Duration, prefix string) *RedisSnapshotCache {
	if prefix == "" {
		prefix = survey.DefaultConfig().Cache.Prefix
	}
	return &RedisSnapshotCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisSnapshotCache) key(formID uuid.UUID, version int) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, formID, version)
}

func (c *RedisSnapshotCache) Get(ctx context.Context, formID uuid.UUID, version int) (*survey.FormVersion, bool, error) {
	raw, err := c.client.Get(ctx, c.key(formID, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var v survey.FormVersion
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("decode cached version: %w", err)
	}
	return &v, true, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, v *survey.FormVersion) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode version: %w", err)
	}
	if err := c.client.Set(ctx, c.key(v.FormID, v.Version), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CachedVersionStore reads single versions through a SnapshotCache. Cache errors
// are logged and the database answers instead.
type CachedVersionStore struct {
	survey.VersionStore
	cache SnapshotCache
}

func NewCachedVersionStore(inner survey.VersionStore, cache SnapshotCache) *CachedVersionStore {
	return &CachedVersionStore{VersionStore: inner, cache: cache}
}

func (s *CachedVersionStore) GetVersion(ctx context.Context, formID uuid.UUID, version int) (*survey.FormVersion, error) {
	cached, ok, err := s.cache.Get(ctx, formID, version)
	if err != nil {
		zap.S().Warnw("snapshot cache read failed", "formId", formID, "version", version, "error", err)
	}
	if ok {
		return cached, nil
	}

	v, err := s.VersionStore.GetVersion(ctx, formID, version)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, v)
	return v, nil
}

func (s *CachedVersionStore) AppendVersion(ctx context.Context, req *survey.AppendVersionRequest) (*survey.FormVersion, error) {
	v, err := s.VersionStore.AppendVersion(ctx, req)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, v)
	return v, nil
}

func (s *CachedVersionStore) remember(ctx context.Context, v *survey.FormVersion) {
	if err := s.cache.Set(ctx, v); err != nil {
		zap.S().Warnw("snapshot cache write failed", "formId", v.FormID, "version", v.Version, "error", err)
	}
}
