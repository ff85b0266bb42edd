// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storetest is a conformance suite run against every store
// backend so they stay interchangeable.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/troforte/assist/services/assist/store"
)

type record struct {
	ID    string   `json:"id"`
	Items []string `json:"items"`
}

// Run exercises the Store contract against stores produced by newStore.
// Each subtest receives a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		var r record
		found, err := s.Get(ctx, "chat:missing", &r)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		in := record{ID: "c1", Items: []string{"x", "y"}}
		require.NoError(t, s.Set(ctx, "chat:c1", in))

		var out record
		found, err := s.Get(ctx, "chat:c1", &out)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, in, out)
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", record{ID: "old"}))
		require.NoError(t, s.Set(ctx, "k", record{ID: "new"}))

		var out record
		_, err := s.Get(ctx, "k", &out)
		require.NoError(t, err)
		assert.Equal(t, "new", out.ID)
	})

	t.Run("GetUndecodable", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", "just a string"))

		var out record
		_, err := s.Get(ctx, "k", &out)
		var decodeErr *store.DecodeError
		require.True(t, errors.As(err, &decodeErr), "want DecodeError, got %v", err)
		assert.Equal(t, "k", decodeErr.Key)
	})

	t.Run("ListPrependOrder", func(t *testing.T) {
		s := newStore(t)
		for i := 1; i <= 3; i++ {
			require.NoError(t, s.ListPrepend(ctx, "list", fmt.Sprintf("id-%d", i)))
		}
		got, err := s.ListRange(ctx, "list", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"id-3", "id-2", "id-1"}, got)

		n, err := s.ListLength(ctx, "list")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("ListRangeWindow", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, s.ListPrepend(ctx, "list", fmt.Sprintf("%d", i)))
		}
		got, err := s.ListRange(ctx, "list", 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "2"}, got)

		got, err = s.ListRange(ctx, "list", 10, 20)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ListMissing", func(t *testing.T) {
		s := newStore(t)
		got, err := s.ListRange(ctx, "nothing", 0, -1)
		require.NoError(t, err)
		assert.Empty(t, got)

		n, err := s.ListLength(ctx, "nothing")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ListRemoveAllOccurrences", func(t *testing.T) {
		s := newStore(t)
		for _, v := range []string{"a", "b", "a", "c"} {
			require.NoError(t, s.ListPrepend(ctx, "list", v))
		}
		require.NoError(t, s.ListRemove(ctx, "list", "a"))

		got, err := s.ListRange(ctx, "list", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, got)

		require.NoError(t, s.ListRemove(ctx, "list", "zzz"))
		require.NoError(t, s.ListRemove(ctx, "missing-list", "a"))
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", record{ID: "1"}))
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"))

		found, err := s.Get(ctx, "k", &record{})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("DeleteList", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ListPrepend(ctx, "list", "a"))
		require.NoError(t, s.Delete(ctx, "list"))

		n, err := s.ListLength(ctx, "list")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ExpireKeepsValue", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ListPrepend(ctx, "list", "a"))
		require.NoError(t, s.Expire(ctx, "list", time.Hour))
		require.NoError(t, s.ListPrepend(ctx, "list", "b"))

		got, err := s.ListRange(ctx, "list", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, got)

		require.NoError(t, s.Expire(ctx, "absent", time.Hour))
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
