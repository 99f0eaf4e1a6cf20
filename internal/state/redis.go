package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"thermoguard/internal/models"
)

const redisKeyPrefix = "thermoguard:cooldown:"

// MinRecordTTL is the floor for how long Redis keeps a cooldown record.
const MinRecordTTL = 24 * time.Hour

// RedisStore keeps cooldown records in Redis as JSON values.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Cooldown is used to size the key TTL, which is always well past the
	// cooldown so expiry never changes a dispatch decision.
	Cooldown time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", opts.Addr, err)
	}

	return NewRedisStoreFromClient(client, opts.Cooldown), nil
}

// NewRedisStoreFromClient wraps an existing client. The store owns the client
// and closes it on Close.
func NewRedisStoreFromClient(client *redis.Client, cooldown time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: recordTTL(cooldown)}
}

func recordTTL(cooldown time.Duration) time.Duration {
	ttl := 4 * cooldown
	if ttl < MinRecordTTL {
		ttl = MinRecordTTL
	}
	return ttl
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.Record, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return &rec, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, rec models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
