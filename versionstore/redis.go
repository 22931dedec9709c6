package versionstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares the marker across processes and survives restarts.
// Optionally, a TTL bounds how long a marker is trusted; once it expires the next
// boot sweeps again.
type Redis struct {
	rdb redis.UniversalClient
	ns  string        // logical namespace; should match the store prefix
	ttl time.Duration // 0 disables expiry
}

var _ Store = (*Redis)(nil)

// NewRedis creates a Redis-backed marker store without TTL.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

// NewRedisWithTTL creates a Redis-backed marker store with TTL.
// If ttl <= 0, the marker does not expire.
func NewRedisWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

func (s *Redis) key() string { return "buildmark:" + s.ns }

func (s *Redis) Load(ctx context.Context) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key()).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Redis) Save(ctx context.Context, version string) error {
	return s.rdb.Set(ctx, s.key(), version, s.ttl).Err()
}

// Close closes the underlying Redis client.
func (s *Redis) Close(ctx context.Context) error { return s.rdb.Close() }
