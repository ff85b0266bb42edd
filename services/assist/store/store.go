// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the key-value adapter used for conversation and
// analysis persistence.
//
// # Description
//
// Records are JSON documents stored under a single key. Per-device indexes
// are ordered string lists with the newest id at the head. Backends:
//
//   - store/redis: any Redis-protocol service (Upstash, ElastiCache, local)
//   - store/badger: embedded BadgerDB for single-node deployments and tests
//
// # Limitations
//
// There are no multi-key transactions. Writing a new record and prepending
// its id to the device index are two separate operations; a crash between
// them leaves a record that is fetchable by id but absent from listings.
// Callers accept this gap rather than assume atomicity.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("store is closed")

// =============================================================================
// Interface Definition
// =============================================================================

// Store is the typed key-value contract shared by all backends.
//
// # Description
//
// Values passed to Set are JSON-encoded; Get decodes into dst. List
// operations follow Redis semantics: ListRange takes inclusive indices
// where negative values count back from the tail, and ListRemove drops
// every occurrence of value.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Concurrent writers to
// the same key are last-write-wins.
type Store interface {
	// Get decodes the record at key into dst. Reports false when the key is
	// absent. A record that cannot be decoded yields a *DecodeError.
	Get(ctx context.Context, key string, dst any) (bool, error)

	// Set encodes v as JSON and stores it at key, clearing any TTL.
	Set(ctx context.Context, key string, v any) error

	// ListPrepend inserts value at the head of the list at listKey.
	ListPrepend(ctx context.Context, listKey, value string) error

	// ListRange returns elements start..stop (inclusive) of the list.
	ListRange(ctx context.Context, listKey string, start, stop int64) ([]string, error)

	// ListLength returns the number of elements in the list, 0 if absent.
	ListLength(ctx context.Context, listKey string) (int64, error)

	// ListRemove removes every occurrence of value from the list.
	ListRemove(ctx context.Context, listKey, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Expire sets a TTL on key. A no-op when the key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// =============================================================================
// Errors
// =============================================================================

// DecodeError reports a stored value that is not valid JSON for the
// requested type. The store itself is healthy.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// =============================================================================
// Helper Functions
// =============================================================================

// SliceRange applies Redis LRANGE index semantics to list.
//
// # Examples
//
//	SliceRange([]string{"a", "b", "c"}, 0, -1) // [a b c]
//	SliceRange([]string{"a", "b", "c"}, 1, 5)  // [b c]
//	SliceRange([]string{"a", "b", "c"}, 3, 4)  // []
func SliceRange(list []string, start, stop int64) []string {
	n := int64(len(list))
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += n
	}
	if stop >= n {
		stop = n - 1
	}
	if start >= n || start > stop {
		return []string{}
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out
}
