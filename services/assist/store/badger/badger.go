// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger implements store.Store on an embedded BadgerDB.
//
// BadgerDB gives single-node deployments a durable store without running
// Redis, and gives tests an in-memory store with identical semantics.
//
// Records are stored as JSON values. Lists are stored as a JSON array of
// strings under their key and rewritten inside one read-write transaction
// per operation, so each list mutation is atomic. TTLs map onto Badger's
// native entry expiry (second granularity).
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/troforte/assist/services/assist/store"
)

// maxConflictRetries bounds retries of a transaction that lost an
// optimistic-concurrency race.
const maxConflictRetries = 5

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC. Ignored in memory.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable fraction before GC rewrites.
	GCDiscardRatio float64
}

// DefaultConfig returns durable settings for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for an ephemeral store.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Store
// =============================================================================

// Store is a store.Store backed by BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use. Conflicting list mutations are retried.
type Store struct {
	db       *badger.DB
	gcRunner *gcRunner
}

// Open opens (or creates) the database described by cfg.
//
// # Examples
//
//	s, err := badger.Open(badger.InMemoryConfig())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcRunner = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gcRunner.start()
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	var raw []byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger get %s: %w", key, err)
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
	err = s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

func (s *Store) ListPrepend(ctx context.Context, listKey, value string) error {
	err := s.mutateList(ctx, listKey, func(list []string) []string {
		return append([]string{value}, list...)
	})
	if err != nil {
		return fmt.Errorf("badger list prepend %s: %w", listKey, err)
	}
	return nil
}

func (s *Store) ListRange(ctx context.Context, listKey string, start, stop int64) ([]string, error) {
	var list []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		list, _, err = readList(txn, listKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("badger list range %s: %w", listKey, err)
	}
	return store.SliceRange(list, start, stop), nil
}

func (s *Store) ListLength(ctx context.Context, listKey string) (int64, error) {
	var n int64
	err := s.view(ctx, func(txn *badger.Txn) error {
		list, _, err := readList(txn, listKey)
		n = int64(len(list))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("badger list length %s: %w", listKey, err)
	}
	return n, nil
}

func (s *Store) ListRemove(ctx context.Context, listKey, value string) error {
	err := s.mutateList(ctx, listKey, func(list []string) []string {
		kept := list[:0]
		for _, v := range list {
			if v != value {
				kept = append(kept, v)
			}
		}
		return kept
	})
	if err != nil {
		return fmt.Errorf("badger list remove %s: %w", listKey, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(key), raw).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("badger expire %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	if s.gcRunner != nil {
		s.gcRunner.stop()
	}
	return s.db.Close()
}

// =============================================================================
// Helper Functions
// =============================================================================

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.View(fn)
}

// update runs fn in a read-write transaction, retrying on conflict.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("context cancelled: %w", ctxErr)
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// mutateList rewrites the list at key with fn, preserving any TTL.
// An empty result deletes the key.
func (s *Store) mutateList(ctx context.Context, key string, fn func([]string) []string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		list, expiresAt, err := readList(txn, key)
		if err != nil {
			return err
		}
		list = fn(list)
		if len(list) == 0 {
			return txn.Delete([]byte(key))
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return err
		}
		entry := badger.NewEntry([]byte(key), raw)
		if expiresAt > 0 {
			entry.ExpiresAt = expiresAt
		}
		return txn.SetEntry(entry)
	})
}

// readList loads the list at key along with its expiry (unix seconds, 0
// for none). An absent key is an empty list.
func readList(txn *badger.Txn, key string) ([]string, uint64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, 0, err
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, 0, &store.DecodeError{Key: key, Err: err}
	}
	return list, item.ExpiresAt(), nil
}

// =============================================================================
// Value Log GC
// =============================================================================

// gcRunner periodically reclaims value log space.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() { go r.run() }

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing was worth collecting.
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && r.logger != nil {
				r.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

var _ store.Store = (*Store)(nil)
