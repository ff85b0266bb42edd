// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weaviate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/retriever"
)

// fakeWeaviate answers the handful of REST and GraphQL routes the client
// touches.
type fakeWeaviate struct {
	mu          sync.Mutex
	graphQL     string
	lastQuery   string
	batchBody   []byte
	classExists bool
	created     bool
}

func (f *fakeWeaviate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/v1/meta":
		_, _ = io.WriteString(w, `{"hostname":"http://[::]:8080","version":"1.28.0","modules":{}}`)
	case r.URL.Path == "/v1/graphql":
		body, _ := io.ReadAll(r.Body)
		f.lastQuery = string(body)
		_, _ = io.WriteString(w, f.graphQL)
	case r.URL.Path == "/v1/batch/objects":
		f.batchBody, _ = io.ReadAll(r.Body)
		var req struct {
			Objects []map[string]any `json:"objects"`
		}
		_ = json.Unmarshal(f.batchBody, &req)
		out := make([]map[string]any, len(req.Objects))
		for i, o := range req.Objects {
			o["result"] = map[string]any{"status": "SUCCESS"}
			out[i] = o
		}
		_ = json.NewEncoder(w).Encode(out)
	case strings.HasPrefix(r.URL.Path, "/v1/schema/") && r.Method == http.MethodGet:
		if !f.classExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"class":"TroforteDocument"}`)
	case r.URL.Path == "/v1/schema" && r.Method == http.MethodPost:
		f.created = true
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeWeaviate) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	c, err := New(Config{URL: server.URL})
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Config{URL: "not a url"})
	assert.Error(t, err)
}

func TestRetrieve_NearText(t *testing.T) {
	fake := &fakeWeaviate{graphQL: `{"data":{"Get":{"TroforteDocument":[{"content":"Microbes improve soil."},{"content":"Use 150kg/ha."}]}}}`}
	c := newTestClient(t, fake)

	out, err := c.Retrieve(context.Background(), "soil health")
	require.NoError(t, err)
	assert.Equal(t, "Microbes improve soil.\nUse 150kg/ha.", out)
	assert.Contains(t, fake.lastQuery, "TroforteDocument")
	assert.Contains(t, fake.lastQuery, "nearText")
	assert.Contains(t, fake.lastQuery, "limit: 3")
}

func TestRetrieve_GraphQLError(t *testing.T) {
	fake := &fakeWeaviate{graphQL: `{"errors":[{"message":"no vectorizer"}]}`}
	c := newTestClient(t, fake)

	_, err := c.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestIndex_BatchesObjects(t *testing.T) {
	fake := &fakeWeaviate{}
	c := newTestClient(t, fake)

	id := uuid.NewString()
	err := c.Index(context.Background(), []retriever.Passage{
		{ID: id, Text: "first", Metadata: map[string]any{"source": "guide.pdf", "chunk": 0, "ignored": true}},
		{ID: "not-a-uuid", Text: "second"},
	})
	require.NoError(t, err)

	var sent struct {
		Objects []struct {
			Class      string         `json:"class"`
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
		} `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(fake.batchBody, &sent))
	require.Len(t, sent.Objects, 2)
	assert.Equal(t, DefaultClassName, sent.Objects[0].Class)
	assert.Equal(t, id, sent.Objects[0].ID)
	assert.Equal(t, "guide.pdf", sent.Objects[0].Properties["source"])
	assert.NotContains(t, sent.Objects[0].Properties, "ignored")
	_, err = uuid.Parse(sent.Objects[1].ID)
	assert.NoError(t, err)
}

func TestObjectID_Stable(t *testing.T) {
	assert.Equal(t, objectID("guide.pdf#3"), objectID("guide.pdf#3"))
	assert.NotEqual(t, objectID("guide.pdf#3"), objectID("guide.pdf#4"))
}

func TestEnsureSchema_CreatesMissingClass(t *testing.T) {
	fake := &fakeWeaviate{}
	c := newTestClient(t, fake)
	require.NoError(t, c.EnsureSchema(context.Background()))
	assert.True(t, fake.created)
}

func TestEnsureSchema_ExistingClass(t *testing.T) {
	fake := &fakeWeaviate{classExists: true}
	c := newTestClient(t, fake)
	require.NoError(t, c.EnsureSchema(context.Background()))
	assert.False(t, fake.created)
}
