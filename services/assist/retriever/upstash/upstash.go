// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package upstash implements the retriever against the Upstash Vector REST
// API, letting the index embed raw text server-side.
package upstash

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/troforte/assist/pkg/restclient"
	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/retriever"
)

const serviceName = "upstash-vector"

// Config holds the REST endpoint and token of an Upstash Vector index.
type Config struct {
	URL     string
	Token   string
	TopK    int
	Timeout time.Duration
}

// Client queries and upserts text into an Upstash Vector index.
type Client struct {
	rest *resty.Client
	topK int
}

type queryRequest struct {
	Data            string `json:"data"`
	TopK            int    `json:"topK"`
	IncludeMetadata bool   `json:"includeMetadata"`
	IncludeData     bool   `json:"includeData"`
}

type queryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Data     string         `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type queryResponse struct {
	Result []queryMatch `json:"result"`
	Error  string       `json:"error,omitempty"`
}

type upsertItem struct {
	ID       string         `json:"id"`
	Data     string         `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// New returns a client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, fmt.Errorf("upstash: url and token are required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retriever.DefaultTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		rest: restclient.New(serviceName, restclient.Options{
			BaseURL:   cfg.URL,
			Timeout:   cfg.Timeout,
			AuthToken: cfg.Token,
		}),
		topK: cfg.TopK,
	}, nil
}

// Retrieve implements retriever.Retriever.
func (c *Client) Retrieve(ctx context.Context, query string) (string, error) {
	var out queryResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(queryRequest{Data: query, TopK: c.topK, IncludeMetadata: true, IncludeData: true}).
		SetResult(&out).
		SetError(&out).
		Post("/query-data")
	if err != nil {
		return "", apperr.Upstream(serviceName, "Failed to retrieve context", err)
	}
	if resp.IsError() {
		return "", apperr.UpstreamHTTP(serviceName, "Failed to retrieve context", resp.StatusCode(), out.Error)
	}

	texts := make([]string, 0, len(out.Result))
	for _, m := range out.Result {
		texts = append(texts, m.Data)
	}
	slog.Debug("Retrieved context", "matches", len(texts))
	return retriever.Join(texts), nil
}

// Index implements retriever.Indexer. Upstash embeds each passage's text
// with the index's configured model.
func (c *Client) Index(ctx context.Context, passages []retriever.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	items := make([]upsertItem, len(passages))
	for i, p := range passages {
		items[i] = upsertItem{ID: p.ID, Data: p.Text, Metadata: p.Metadata}
	}

	var out struct {
		Error string `json:"error,omitempty"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(items).
		SetError(&out).
		Post("/upsert-data")
	if err != nil {
		return apperr.Upstream(serviceName, "Failed to index document", err)
	}
	if resp.IsError() {
		return apperr.UpstreamHTTP(serviceName, "Failed to index document", resp.StatusCode(), out.Error)
	}
	slog.Info("Indexed passages", "count", len(items))
	return nil
}
