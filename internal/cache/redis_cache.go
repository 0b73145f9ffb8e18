package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const generationKey = "reports:gen"

// RedisReportCache namespaces keys by a generation counter so that
// invalidation is a single INCR instead of a key scan.
type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) Generation(ctx context.Context) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return gen, err
}

func (c *RedisReportCache) Get(ctx context.Context, gen string, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, entryKey(gen, key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under gen, the generation the caller read before
// computing it. Entries of a superseded generation are never read again and
// expire with their TTL.
func (c *RedisReportCache) Set(ctx context.Context, gen string, key string, value any, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, entryKey(gen, key), payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}

func entryKey(gen string, key string) string {
	return fmt.Sprintf("reports:%s:%s", gen, key)
}
