// Package redisstore adapts Redis to the keyed store the verification
// services need: get, set-with-expiry, delete, ttl, and an optimistic
// read-modify-write for the paths that must not lose updates under
// concurrent requests (attempt increments, cooldown checks).
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/storefront-auth-api/internal/config"
	"github.com/storefront-auth-api/internal/domain"
	"github.com/storefront-auth-api/internal/pkg/kv"
)

// updateRetries bounds WATCH retries on contended keys. Contention on a
// per-email key is rare; five retries is already generous.
const updateRetries = 5

// NewClient builds a go-redis client with bounded dial/read/write timeouts so
// a stalled store surfaces as a handler error instead of a hung request.
func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Store wraps a shared Redis client. Each method is a single round trip (or a
// single transaction); there is no per-request connection state to leak.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the value at key, or an error wrapping domain.ErrNotFound when
// the key is absent or expired.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("key %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("store get %s: %w", key, err)
	}
	return v, nil
}

// Set writes value at key with the given TTL, overwriting any existing record.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("store delete %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key. Non-positive values mean the key
// is absent, expired, or carries no expiry.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("store ttl %s: %w", key, err)
	}
	return d, nil
}

// Update runs fn against the current value and remaining TTL of key inside a
// WATCH/MULTI transaction and applies the returned mutation. If another
// client writes the key between the read and the commit, the transaction is
// retried with the fresh value. Absent keys yield domain.ErrNotFound without
// invoking fn.
func (s *Store) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("key %s: %w", key, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}
		ttl, err := tx.TTL(ctx, key).Result()
		if err != nil {
			return err
		}
		mut, err := fn(val, ttl)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			switch mut.Op {
			case kv.OpWrite:
				pipe.Set(ctx, key, mut.Value, mut.TTL)
			case kv.OpDelete:
				pipe.Del(ctx, key)
			}
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < updateRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("store update %s: %w", key, err)
			}
			return err
		}
	}
	return fmt.Errorf("store update %s: transaction kept failing: %w", key, err)
}

// Ping reports store health.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
