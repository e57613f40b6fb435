// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package echo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisPrefix namespaces suppression keys.
const DefaultRedisPrefix = "cutiesync:echo:"

const scanBatch = 100

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Prefix   string // key prefix, DefaultRedisPrefix when empty

	// Expiry is the hard Redis TTL put on every key. The sweeper performs the
	// precise eviction; this only bounds leaks when no sweeper runs.
	Expiry time.Duration
}

// RedisStore keeps suppression entries in Redis so several processes of the
// same client can share one table.
type RedisStore struct {
	client *redis.Client
	prefix string
	expiry time.Duration
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis suppression store")

	return NewRedisStoreWithClient(client, cfg, logger), nil
}

// NewRedisStoreWithClient wraps an existing client. The store owns the client.
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, expiry: cfg.Expiry, logger: logger}
}

func (s *RedisStore) key(correlationID string) string {
	return s.prefix + correlationID
}

func (s *RedisStore) Put(ctx context.Context, entry model.SuppressionEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal suppression entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(entry.CorrelationID), data, s.expiry).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, correlationID string) (model.SuppressionEntry, bool, error) {
	val, err := s.client.Get(ctx, s.key(correlationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.SuppressionEntry{}, false, nil
	}
	if err != nil {
		return model.SuppressionEntry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e model.SuppressionEntry
	if err := json.Unmarshal(val, &e); err != nil {
		return model.SuppressionEntry{}, false, fmt.Errorf("decode suppression entry: %w", err)
	}
	return e, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, correlationID string) error {
	if err := s.client.Del(ctx, s.key(correlationID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]model.SuppressionEntry, error) {
	keys, err := s.keys(ctx)
	if err != nil || len(keys) == 0 {
		return nil, err
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]model.SuppressionEntry, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		var e model.SuppressionEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.logger.Warn().Err(err).Str("key", keys[i]).Msg("skipping undecodable suppression entry")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteRegisteredBefore checks each key under WATCH so an entry that is
// re-registered while the sweep runs is kept.
func (s *RedisStore) DeleteRegisteredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			val, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			var e model.SuppressionEntry
			if err := json.Unmarshal(val, &e); err == nil && !e.RegisteredAt.Before(cutoff) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err == nil {
				removed++
			}
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("sweep %s: %w", key, err)
		}
	}
	return removed, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.keys(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

var _ Store = (*RedisStore)(nil)
