package locks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "storesync:lock:"

// RedisOptions configure the Redis-backed lock store.
type RedisOptions struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore implements Store on Redis. Lock state is a JSON payload under
// a prefixed key; Redis key expiry enforces the TTL and Lua scripts keep
// acquire and owner-checked release atomic.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}

	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    []string{addr},
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// acquireScript sets the lock only when the key is free and otherwise
// returns the current payload, so conflicting acquirers learn the holder
// in the same round trip.
var acquireScript = goredis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
return redis.call("GET", KEYS[1])`)

// TryAcquire implements Store. Reclamation of expired locks is Redis key
// expiry itself: once the key is gone the SET NX succeeds.
func (s *RedisStore) TryAcquire(ctx context.Context, key string, class OperationClass, holderID string, ttl time.Duration) (*Lock, bool, error) {
	now := time.Now().UTC()
	lock := Lock{
		ResourceKey:    key,
		HolderID:       holderID,
		OperationClass: class,
		AcquiredAt:     now,
		ExpiresAt:      now.Add(ttl),
	}
	payload, err := json.Marshal(lock)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode lock payload: %w", err)
	}

	res, err := acquireScript.Run(ctx, s.client, []string{s.lockKey(key)}, payload, ttl.Milliseconds()).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, false, err
	}
	switch v := res.(type) {
	case int64:
		return &lock, true, nil
	case string:
		held, err := s.decodePayload(key, []byte(v))
		if err != nil {
			return nil, false, err
		}
		return held, false, nil
	case nil:
		// Key vanished between the failed SET and the GET; report a
		// conflict with an unknown holder and let the caller retry.
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("unexpected acquire result: %v", res)
	}
}

// releaseScript deletes the key only when the stored holder matches.
var releaseScript = goredis.NewScript(`
local val = redis.call("GET", KEYS[1])
if not val then
	return 0
end
if cjson.decode(val)["holder_id"] == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string, holderID string) error {
	err := releaseScript.Run(ctx, s.client, []string{s.lockKey(key)}, holderID).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (*Lock, error) {
	val, err := s.client.Get(ctx, s.lockKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decodePayload(key, val)
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context) ([]Lock, error) {
	var out []Lock
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fullKey := iter.Val()
		val, err := s.client.Get(ctx, fullKey).Bytes()
		if errors.Is(err, goredis.Nil) {
			// Expired between scan and read.
			continue
		}
		if err != nil {
			return nil, err
		}
		lock, err := s.decodePayload(strings.TrimPrefix(fullKey, s.prefix), val)
		if err != nil {
			return nil, err
		}
		out = append(out, *lock)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.lockKey(key)).Err()
}

func (s *RedisStore) lockKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) decodePayload(key string, payload []byte) (*Lock, error) {
	var lock Lock
	if err := json.Unmarshal(payload, &lock); err != nil {
		return nil, fmt.Errorf("failed to decode lock payload for %s: %w", key, err)
	}
	lock.ResourceKey = key
	return &lock, nil
}
