package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCacheKey = "cache"

	redisScanCount = 100

	// setIfWritableScript stores ARGV[1] unless the current item is immutable
	// and owned by someone other than ARGV[2]. ARGV[3] is the TTL in milliseconds.
	setIfWritableScript = `
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, it = pcall(cjson.decode, cur)
  if ok and type(it) == 'table' and it.imm and (it.o or '') ~= ARGV[2] then
    return 0
  end
end
local ttl = tonumber(ARGV[3]) or 0
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`

	// deleteIfWritableScript removes the key for ARGV[1] unless it is immutable
	// and owned by someone else. Items isolated to another owner are left alone.
	deleteIfWritableScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then return 1 end
local ok, it = pcall(cjson.decode, cur)
if ok and type(it) == 'table' then
  local owner = it.o or ''
  if (it.vis or 0) == 1 and owner ~= ARGV[1] then return 1 end
  if it.imm and owner ~= ARGV[1] then return 0 end
end
redis.call('DEL', KEYS[1])
return 1
`
)

var (
	setIfWritable    = redis.NewScript(setIfWritableScript)
	deleteIfWritable = redis.NewScript(deleteIfWritableScript)
)

// RedisConfig configures the Redis store backend.
//
// You can either provide an existing Redis client or let the store create one
// from a URL.
type RedisConfig struct {
	// Client is the Redis client to use.
	// If nil, a client is created from the URL.
	Client *redis.Client

	// URL is the Redis URL to use.
	// If empty, the Redis client is not created.
	URL string

	// Prefix is the partition name. All keys of the store live under it,
	// so several partitions can share one Redis instance.
	Prefix string

	// TTL is the default time-to-live used when no explicit TTL is provided.
	TTL time.Duration
}

// RedisCache implements the Cache interface using Redis as the backend.
//
// Each item is a Redis string key "<prefix>cache:<key>" holding the JSON encoded
// item. Expiration uses Redis's own key TTL; immutability checks run inside Lua
// scripts so they are atomic with the write.
type RedisCache struct {
	client      *redis.Client
	ownedClient bool

	prefix string

	ttl time.Duration
}

// NewRedis creates a new Redis store with the specified configuration.
//
// Example:
//
//	store, err := cache.NewRedis(cache.RedisConfig{
//	    URL:    "redis://localhost:6379",
//	    Prefix: "myapp:organization",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewRedis(config RedisConfig) (*RedisCache, error) {
	if config.Prefix != "" && !strings.HasSuffix(config.Prefix, ":") {
		config.Prefix += ":"
	}

	if config.Client == nil && config.URL == "" {
		return nil, fmt.Errorf("%w: no redis client or url provided", ErrInvalidConfig)
	}

	client := config.Client
	if client == nil {
		opt, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}

		client = redis.NewClient(opt)
	}

	return &RedisCache{
		client:      client,
		ownedClient: config.Client == nil,

		prefix: config.Prefix + redisCacheKey + ":",

		ttl: config.TTL,
	}, nil
}

// Cleanup is a no-op: Redis expires keys on its own.
func (r *RedisCache) Cleanup(_ context.Context) error {
	return nil
}

// Delete removes the item associated with the given key.
func (r *RedisCache) Delete(ctx context.Context, key string, opts ...Option) error {
	o := newOptions(0, opts...)

	res, err := deleteIfWritable.Run(ctx, r.client, []string{r.prefix + key}, o.owner).Int()
	if err != nil {
		return fmt.Errorf("failed to delete cache item: %w", err)
	}

	if res == 0 {
		return ErrImmutable
	}

	return nil
}

// Get retrieves the value for the given key from Redis.
func (r *RedisCache) Get(ctx context.Context, key string, opts ...Option) ([]byte, error) {
	o := newOptions(0, opts...)

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache item: %w", err)
	}

	stored, err := unmarshalItem(raw)
	if err != nil {
		return nil, err
	}

	it, err := lookup(stored, true, o.owner, time.Now())
	if err != nil {
		return nil, err
	}

	return it.Value, nil
}

// Has reports whether a visible item exists for the key.
func (r *RedisCache) Has(ctx context.Context, key string, opts ...Option) (bool, error) {
	return has(r.Get(ctx, key, opts...))
}

// Keys scans the partition prefix and returns the sorted visible keys.
func (r *RedisCache) Keys(ctx context.Context, opts ...Option) ([]string, error) {
	o := newOptions(0, opts...)

	var redisKeys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(r.prefix)+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		redisKeys = append(redisKeys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(redisKeys) == 0 {
		return []string{}, nil
	}

	values, err := r.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cache items: %w", err)
	}

	now := time.Now()
	keys := make([]string, 0, len(redisKeys))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		stored, unmarshalErr := unmarshalItem([]byte(raw))
		if unmarshalErr != nil {
			continue
		}

		if _, lookupErr := lookup(stored, true, o.owner, now); lookupErr != nil {
			continue
		}

		keys = append(keys, strings.TrimPrefix(redisKeys[i], r.prefix))
	}
	slices.Sort(keys)

	return keys, nil
}

// Set stores the value for the given key in Redis, overwriting any existing value.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, opts ...Option) error {
	o := newOptions(r.ttl, opts...)

	data, err := newItem(value, o).marshal()
	if err != nil {
		return err
	}

	var ttlMillis int64
	if !o.validUntil.IsZero() {
		ttlMillis = max(time.Until(o.validUntil).Milliseconds(), 1)
	}

	res, err := setIfWritable.Run(ctx, r.client, []string{r.prefix + key}, data, o.owner, ttlMillis).Int()
	if err != nil {
		return fmt.Errorf("failed to set cache item: %w", err)
	}

	if res == 0 {
		return ErrImmutable
	}

	return nil
}

// Ping checks the connection to Redis.
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}

	return nil
}

// Close releases any resources held by the Redis store.
//
// A client passed in through RedisConfig is left open for its owner.
func (r *RedisCache) Close() error {
	if r.ownedClient {
		if err := r.client.Close(); err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
	}

	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}

// Compile-time check to ensure RedisCache implements the Cache interface.
var _ Cache = (*RedisCache)(nil)
