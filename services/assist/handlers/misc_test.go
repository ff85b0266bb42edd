// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troforte/assist/services/assist/farmers"
	"github.com/troforte/assist/services/assist/ingest"
	"github.com/troforte/assist/services/assist/news"
	"github.com/troforte/assist/services/assist/retriever"
)

// =============================================================================
// Upload
// =============================================================================

type recordingIndexer struct {
	passages []retriever.Passage
}

func (r *recordingIndexer) Index(_ context.Context, passages []retriever.Passage) error {
	r.passages = append(r.passages, passages...)
	return nil
}

func TestUpload_StoresAndIndexesText(t *testing.T) {
	uploader := &recordingUploader{}
	indexer := &recordingIndexer{}
	router := gin.New()
	router.POST("/api/upload", HandleUpload(uploader, ingest.New(indexer)))

	body, contentType := multipartBody(t, nil, formFile{"file", "Guide.txt", []byte("Troforte M suits canola and wheat.")})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeMap(t, w)
	assert.Equal(t, "File uploaded successfully", resp["message"])
	file := resp["file"].(map[string]any)
	assert.Equal(t, "Guide.txt", file["originalname"])
	assert.True(t, strings.HasPrefix(file["mimetype"].(string), "text/plain"))
	assert.Equal(t, float64(1), file["chunks"])
	require.Len(t, uploader.keys, 1)
	assert.True(t, strings.HasPrefix(uploader.keys[0], "uploads/"))
	require.Len(t, indexer.passages, 1)
	assert.Contains(t, indexer.passages[0].Text, "canola")
}

func TestUpload_NoFile(t *testing.T) {
	router := gin.New()
	router.POST("/api/upload", HandleUpload(&recordingUploader{}, nil))
	body, contentType := multipartBody(t, map[string]string{"x": "y"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"No file uploaded"}`, w.Body.String())
}

func TestUpload_StorageFailure(t *testing.T) {
	router := gin.New()
	router.POST("/api/upload", HandleUpload(&recordingUploader{err: errors.New("denied")}, nil))
	body, contentType := multipartBody(t, nil, formFile{"file", "a.txt", []byte("hi")})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// =============================================================================
// Health
// =============================================================================

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	router := gin.New()
	router.GET("/ok", HandleHealth(pingFunc(func(context.Context) error { return nil })))
	router.GET("/down", HandleHealth(pingFunc(func(context.Context) error { return errors.New("dial tcp") })))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// =============================================================================
// News
// =============================================================================

func TestAgricultureNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":1,"title":"Rain","description":"d","image":"https://n/1.jpg","href":"https://n/1","published_at":"2025-01-01","source":{"domain":"abc"}}]}`))
	}))
	defer srv.Close()

	router := gin.New()
	router.GET("/api/news", HandleAgricultureNews(news.New(news.Config{APIKey: "k", BaseURL: srv.URL})))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"Rain"`)
}

// =============================================================================
// Users
// =============================================================================

type memStore struct {
	mu      sync.Mutex
	records map[string][]farmers.Record
	next    int
}

func (m *memStore) Select(_ context.Context, table, formula string, _ int) ([]farmers.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []farmers.Record
	for _, rec := range m.records[table] {
		if email, _ := rec.Fields["Email"].(string); strings.Contains(formula, farmers.QuoteFormula(email)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, table string, fields map[string]any) (*farmers.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = map[string][]farmers.Record{}
	}
	m.next++
	rec := farmers.Record{ID: table[:1] + string(rune('0'+m.next)), Fields: fields}
	m.records[table] = append(m.records[table], rec)
	return &rec, nil
}

func (m *memStore) Update(_ context.Context, table, id string, fields map[string]any) (*farmers.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.records[table] {
		if rec.ID == id {
			for k, v := range fields {
				rec.Fields[k] = v
			}
			m.records[table][i] = rec
			return &rec, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memStore) Find(_ context.Context, table, id string) (*farmers.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records[table] {
		if rec.ID == id {
			return &rec, true, nil
		}
	}
	return nil, false, nil
}

func TestUsers_SignUpAndLogin(t *testing.T) {
	svc := farmers.NewService(&memStore{})
	router := gin.New()
	router.POST("/api/signup", HandleSignUp(svc))
	router.POST("/api/login", HandleLogin(svc))
	router.GET("/api/farmer/:farmerId", HandleGetFarmer(svc))

	send := func(target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := send("/api/signup", `{"email":"a@farm.au","password":"pw"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "Password")

	w = send("/api/signup", `{"email":"a@farm.au","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send("/api/login", `{"email":"a@farm.au","password":"pw"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = send("/api/login", `{"email":"a@farm.au","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid password"}`, w.Body.String())

	w = send("/api/login", `{"email":"b@farm.au","password":"pw"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/farmer/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Farmer not found"}`, w.Body.String())
}
