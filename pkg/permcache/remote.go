package permcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scanBatch = 200
	delBatch  = 512
)

// Remote is the shared tier of the cache, visible across service instances.
// Implementations are best-effort: the cache treats every error as a miss
// and falls through to the source of truth. Get returns (nil, nil) on a
// miss; MGet returns a positional slice with nil for each miss.
//
// Key arguments are logical keys; implementations own any namespacing. Set
// members are opaque values stored and returned verbatim.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// MSet stores several values in one round trip, all under the same TTL.
	MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error

	// DelPattern removes every key matching the glob pattern.
	DelPattern(ctx context.Context, pattern string) error

	// SAdd adds members to the set at key and refreshes its TTL.
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error

	// SMembersDel returns the members of the set at key and removes the set.
	SMembersDel(ctx context.Context, key string) ([]string, error)
}

// RedisRemote implements Remote on a Redis backend. All keys are stored
// under the configured prefix so one Redis database can serve several
// environments.
type RedisRemote struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRemote wraps an already-connected Redis client. The prefix is
// prepended to every key; pass "" for none.
func NewRedisRemote(client redis.UniversalClient, prefix string) *RedisRemote {
	return &RedisRemote{client: client, prefix: prefix}
}

func (r *RedisRemote) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *RedisRemote) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.prefix + key
	}
	vals, err := r.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, val := range vals {
		if s, ok := val.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

func (r *RedisRemote) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// MSet pipelines the writes because Redis's MSET has no per-key TTL.
func (r *RedisRemote) MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for key, value := range entries {
		pipe.Set(ctx, r.prefix+key, value, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRemote) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.prefix + key
	}
	return r.client.Del(ctx, prefixed...).Err()
}

func (r *RedisRemote) DelPattern(ctx context.Context, pattern string) error {
	keys := make([]string, 0, delBatch)
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= delBatch {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r *RedisRemote) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, member := range members {
		args[i] = member
	}
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.prefix+key, args...)
	pipe.Expire(ctx, r.prefix+key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRemote) SMembersDel(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.prefix+key).Result()
	if err != nil {
		return nil, err
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return members, err
	}
	return members, nil
}
