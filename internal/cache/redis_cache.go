package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vetpos/backend/internal/domain"
)

// keyPrefix is versioned so a change to the stored shape never reads old entries.
const keyPrefix = "vetpos:assistant:classification:v1:"

type RedisClassificationCache struct {
	client *redis.Client
}

func NewRedisClassificationCache(addr string, password string, db int) *RedisClassificationCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisClassificationCache{client: client}
}

func (c *RedisClassificationCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisClassificationCache) Close() error {
	return c.client.Close()
}

// Get returns a miss for absent keys. An entry that fails to decode is
// deleted and reported as a miss wrapped in ErrCorruptEntry.
func (c *RedisClassificationCache) Get(ctx context.Context, key string) (*domain.Classification, bool, error) {
	redisKey := keyPrefix + key
	val, err := c.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	classification, decodeErr := decodeEntry(val)
	if decodeErr == nil {
		return classification, true, nil
	}
	if err := c.client.Del(ctx, redisKey).Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v (delete failed: %v)", ErrCorruptEntry, decodeErr, err)
	}
	return nil, false, fmt.Errorf("%w: %v", ErrCorruptEntry, decodeErr)
}

func (c *RedisClassificationCache) Set(ctx context.Context, key string, value *domain.Classification, ttl time.Duration) error {
	if value == nil || !validClassification(*value) {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
}

func decodeEntry(raw []byte) (*domain.Classification, error) {
	var classification domain.Classification
	if err := json.Unmarshal(raw, &classification); err != nil {
		return nil, err
	}
	if !validClassification(classification) {
		return nil, fmt.Errorf("unknown classification type %q", classification.Type)
	}
	return &classification, nil
}
