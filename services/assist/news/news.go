// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package news fetches Australian agriculture headlines from apitube.
package news

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/troforte/assist/pkg/restclient"
	"github.com/troforte/assist/services/assist/apperr"
)

const (
	ServiceName    = "apitube"
	DefaultBaseURL = "https://api.apitube.io/v1"

	agricultureCategory = "medtop:20000210"
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Article is the trimmed shape sent to the app.
type Article struct {
	ID          any    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
	URL         string `json:"url"`
}

type apiArticle struct {
	ID          any    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Href        string `json:"href"`
	PublishedAt string `json:"published_at"`
	Source      *struct {
		Domain string `json:"domain"`
	} `json:"source"`
}

type apiResponse struct {
	Results []apiArticle `json:"results"`
}

type Client struct {
	rest   *resty.Client
	apiKey string
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		rest: restclient.New(ServiceName, restclient.Options{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Headers: map[string]string{"Accept": "application/json"},
		}),
		apiKey: cfg.APIKey,
	}
}

// Agriculture returns the latest agriculture articles for Australia.
func (c *Client) Agriculture(ctx context.Context) ([]Article, error) {
	var out apiResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"category.id":   agricultureCategory,
			"country.code":  "au",
			"language.code": "en",
			"api_key":       c.apiKey,
		}).
		SetResult(&out).
		Get("/news/everything")
	if err != nil {
		return nil, apperr.Upstream(ServiceName, "Failed to fetch news articles", err)
	}
	if resp.IsError() {
		return nil, apperr.UpstreamHTTP(ServiceName, "Failed to fetch news articles", resp.StatusCode(), nil)
	}
	if out.Results == nil {
		return nil, apperr.UpstreamBody(ServiceName, "Failed to fetch news articles",
			fmt.Errorf("response has no results"))
	}

	articles := make([]Article, 0, len(out.Results))
	for _, a := range out.Results {
		source := "Unknown"
		if a.Source != nil && a.Source.Domain != "" {
			source = a.Source.Domain
		}
		articles = append(articles, Article{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Image:       a.Image,
			Source:      source,
			PublishedAt: a.PublishedAt,
			URL:         a.Href,
		})
	}
	return articles, nil
}
