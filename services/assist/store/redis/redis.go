// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package redis implements store.Store on any Redis-protocol service.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/troforte/assist/services/assist/store"
)

// Config selects the Redis endpoint.
//
// # Fields
//
//   - URL: redis:// or rediss:// URL; Upstash issues rediss:// URLs
//   - DialTimeout: connect timeout, 5s when zero
type Config struct {
	URL         string
	DialTimeout time.Duration
}

// Store is a store.Store backed by go-redis.
type Store struct {
	client *goredis.Client
}

// New parses cfg.URL, connects, and pings the server.
//
// # Outputs
//
//   - *Store: ready to use
//   - error: invalid URL or unreachable server
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	} else {
		opts.DialTimeout = 5 * time.Second
	}

	s := NewFromClient(goredis.NewClient(opts))
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	slog.Info("Connected to redis store", "addr", opts.Addr, "tls", opts.TLSConfig != nil)
	return s, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, &store.DecodeError{Key: key, Err: err}
	}
	return true, nil
}

func (s *Store) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) ListPrepend(ctx context.Context, listKey, value string) error {
	if err := s.client.LPush(ctx, listKey, value).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", listKey, err)
	}
	return nil
}

func (s *Store) ListRange(ctx context.Context, listKey string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, listKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", listKey, err)
	}
	return vals, nil
}

func (s *Store) ListLength(ctx context.Context, listKey string) (int64, error) {
	n, err := s.client.LLen(ctx, listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen %s: %w", listKey, err)
	}
	return n, nil
}

func (s *Store) ListRemove(ctx context.Context, listKey, value string) error {
	if err := s.client.LRem(ctx, listKey, 0, value).Err(); err != nil {
		return fmt.Errorf("redis lrem %s: %w", listKey, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ store.Store = (*Store)(nil)
