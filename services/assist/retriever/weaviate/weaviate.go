// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package weaviate implements the retriever on a Weaviate class with a
// text vectorizer module, for deployments that self-host the index.
package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/retriever"
)

const serviceName = "weaviate"

const (
	DefaultClassName  = "TroforteDocument"
	DefaultVectorizer = "text2vec-transformers"
)

// Config addresses a Weaviate instance.
type Config struct {
	URL        string
	ClassName  string
	Vectorizer string
	TopK       int
}

// Client runs nearText queries and batch imports against one class.
type Client struct {
	client     *weaviate.Client
	className  string
	vectorizer string
	topK       int
}

// New builds a client. It does not contact the server.
func New(cfg Config) (*Client, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("weaviate: invalid url %q", cfg.URL)
	}
	if cfg.ClassName == "" {
		cfg.ClassName = DefaultClassName
	}
	if cfg.Vectorizer == "" {
		cfg.Vectorizer = DefaultVectorizer
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retriever.DefaultTopK
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &Client{client: client, className: cfg.ClassName, vectorizer: cfg.Vectorizer, topK: cfg.TopK}, nil
}

// Schema describes the document class.
func (c *Client) Schema() *models.Class {
	return &models.Class{
		Class:       c.className,
		Description: "Troforte knowledge-base passages",
		Vectorizer:  c.vectorizer,
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}, Description: "Passage text.", Tokenization: "word"},
			{Name: "source", DataType: []string{"text"}, Description: "Original file name.", Tokenization: "field"},
			{Name: "chunk", DataType: []string{"int"}, Description: "Chunk position in the source."},
		},
	}
}

// EnsureSchema creates the document class when it is missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	exists, err := c.client.Schema().ClassExistenceChecker().WithClassName(c.className).Do(ctx)
	if err != nil {
		return apperr.Upstream(serviceName, "Failed to check schema", err)
	}
	if exists {
		return nil
	}
	if err := c.client.Schema().ClassCreator().WithClass(c.Schema()).Do(ctx); err != nil {
		return apperr.Upstream(serviceName, "Failed to create schema", err)
	}
	slog.Info("Created Weaviate class", "class", c.className)
	return nil
}

// documentResponse is the GraphQL Get shape for the document class. The
// class name is dynamic so the inner map is keyed by it.
type documentResponse struct {
	Get map[string][]struct {
		Content string `json:"content"`
	} `json:"Get"`
}

// Retrieve implements retriever.Retriever.
func (c *Client) Retrieve(ctx context.Context, query string) (string, error) {
	nearText := c.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})

	resp, err := c.client.GraphQL().Get().
		WithClassName(c.className).
		WithFields(graphql.Field{Name: "content"}).
		WithNearText(nearText).
		WithLimit(c.topK).
		Do(ctx)
	if err != nil {
		return "", apperr.Upstream(serviceName, "Failed to retrieve context", err)
	}
	if len(resp.Errors) > 0 {
		return "", apperr.UpstreamBody(serviceName, "Failed to retrieve context", errors.New(resp.Errors[0].Message))
	}

	parsed, err := parseGraphQLResponse[documentResponse](resp)
	if err != nil {
		return "", apperr.UpstreamBody(serviceName, "Failed to retrieve context", err)
	}
	docs := parsed.Get[c.className]
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		texts = append(texts, d.Content)
	}
	return retriever.Join(texts), nil
}

// Index implements retriever.Indexer with a single batch request.
func (c *Client) Index(ctx context.Context, passages []retriever.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	objects := make([]*models.Object, len(passages))
	for i, p := range passages {
		props := map[string]interface{}{"content": p.Text}
		for k, v := range p.Metadata {
			if k == "source" || k == "chunk" {
				props[k] = v
			}
		}
		objects[i] = &models.Object{
			Class:      c.className,
			ID:         objectID(p.ID),
			Properties: props,
		}
	}

	resp, err := c.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return apperr.Upstream(serviceName, "Failed to index document", err)
	}

	failed := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			failed++
			slog.Warn("Weaviate batch item failed", "id", item.ID, "error", item.Result.Errors.Error[0].Message)
		}
	}
	if failed > 0 {
		return apperr.UpstreamBody(serviceName, "Failed to index document", fmt.Errorf("%d of %d objects rejected", failed, len(objects)))
	}
	slog.Info("Indexed passages", "class", c.className, "count", len(objects))
	return nil
}

// objectID keeps ids that are already UUIDs and maps anything else onto a
// stable name-based UUID.
func objectID(id string) strfmt.UUID {
	if parsed, err := uuid.Parse(id); err == nil {
		return strfmt.UUID(parsed.String())
	}
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String())
}

// parseGraphQLResponse converts the dynamic GraphQL payload into T.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal GraphQL data: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal GraphQL data: %w", err)
	}
	return &out, nil
}
