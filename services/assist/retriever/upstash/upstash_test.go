// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package upstash

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/retriever"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := New(Config{URL: server.URL, Token: "tok"})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresURLAndToken(t *testing.T) {
	_, err := New(Config{URL: "http://x"})
	assert.Error(t, err)
	_, err = New(Config{Token: "t"})
	assert.Error(t, err)
}

func TestRetrieve_JoinsData(t *testing.T) {
	var got queryRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query-data", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"id":"1","score":0.9,"data":"Troforte M suits wheat."},{"id":"2","score":0.8,"data":"Apply at sowing."}]}`))
	})

	out, err := c.Retrieve(context.Background(), "wheat fertiliser")
	require.NoError(t, err)
	assert.Equal(t, "Troforte M suits wheat.\nApply at sowing.", out)
	assert.Equal(t, queryRequest{Data: "wheat fertiliser", TopK: 3, IncludeMetadata: true, IncludeData: true}, got)
}

func TestRetrieve_NoMatches(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[]}`))
	})
	out, err := c.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRetrieve_ProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
	})
	_, err := c.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, http.StatusUnauthorized, apperr.Status(err))
}

func TestIndex_UpsertsPassages(t *testing.T) {
	var got []upsertItem
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upsert-data", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"Success"}`))
	})

	err := c.Index(context.Background(), []retriever.Passage{
		{ID: "a", Text: "chunk one", Metadata: map[string]any{"source": "guide.pdf"}},
		{ID: "b", Text: "chunk two"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "chunk one", got[0].Data)
	assert.Equal(t, "guide.pdf", got[0].Metadata["source"])
	assert.Equal(t, "b", got[1].ID)
}

func TestIndex_EmptyIsNoop(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	require.NoError(t, c.Index(context.Background(), nil))
	assert.False(t, called)
}
