// Package redis implements domain.KV on top of a Redis server so several
// agent processes on one device share the same persisted state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"vn.io.arda/storefront-notifier/internal/domain"
)

// KV is the Redis implementation of domain.KV.
type KV struct {
	client *goredis.Client
	prefix string
}

// New wraps client. Every key is stored under prefix (e.g. "storefront:").
func New(client *goredis.Client, prefix string) *KV {
	return &KV{client: client, prefix: prefix}
}

// Connect opens a client for addr and verifies it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Get decodes the value for key into dest.
func (s *KV) Get(ctx context.Context, key string, dest any) error {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("get %q: %w", key, domain.ErrNotFound)
		}
		return fmt.Errorf("redis get %q: %w", key, err)
	}
	return json.Unmarshal(raw, dest)
}

// Set stores value under key with no expiry.
func (s *KV) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// maxTxRetries bounds optimistic retries when another writer touches a watched key.
const maxTxRetries = 10

// Update is an optimistic WATCH/MULTI transaction: fn sees the current value and
// the write only lands if nobody else changed the key meanwhile, otherwise fn is rerun.
func (s *KV) Update(ctx context.Context, key string, fn domain.UpdateFunc) error {
	k := s.prefix + key
	txf := func(tx *goredis.Tx) error {
		raw, getErr := tx.Get(ctx, k).Bytes()
		value, err := fn(func(dest any) error {
			if errors.Is(getErr, goredis.Nil) {
				return fmt.Errorf("get %q: %w", key, domain.ErrNotFound)
			}
			if getErr != nil {
				return fmt.Errorf("redis get %q: %w", key, getErr)
			}
			return json.Unmarshal(raw, dest)
		})
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %q: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, encoded, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis update %q: %w", key, goredis.TxFailedErr)
}

// Delete removes key.
func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}
