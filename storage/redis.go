package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementIfExistsScript refuses to touch a missing key so a paste deleted
// by a concurrent reader is never recreated as a bare views counter.
var incrementIfExistsScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], ARGV[2])
`)

// RedisStore implements HashStore on Redis hashes
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to the Redis server at url (redis:// or rediss://)
// and verifies the connection with PING.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// SetFields issues HSET key f1 v1 f2 v2 ...
func (r *RedisStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return r.client.HSet(ctx, key, args...).Err()
}

// GetFields issues HGETALL; an empty reply means the key does not exist
func (r *RedisStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

// IncrementField runs HINCRBY guarded by an EXISTS check in one script call
func (r *RedisStore) IncrementField(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := incrementIfExistsScript.Run(ctx, r.client, []string{key}, field, delta).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return n, nil
}

// SetExpiry issues EXPIRE, or PEXPIRE for sub-second precision
func (r *RedisStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if ttl%time.Second == 0 {
		return r.client.Expire(ctx, key, ttl).Err()
	}
	return r.client.PExpire(ctx, key, ttl).Err()
}

// Delete issues DEL
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Exists issues EXISTS
func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Ping succeeds only on a PONG reply
func (r *RedisStore) Ping(ctx context.Context) error {
	res, err := r.client.Ping(ctx).Result()
	if err != nil {
		return err
	}
	if res != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", res)
	}
	return nil
}

// Close closes the client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
