// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plantid is a client for the Plant.id v3 health assessment and
// identification endpoints.
package plantid

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/troforte/assist/pkg/restclient"
	"github.com/troforte/assist/services/assist/apperr"
)

var tracer = otel.Tracer("troforte.assist.plantid")

const (
	ServiceName    = "plant.id"
	DefaultBaseURL = "https://api.plant.id/v3"
	DefaultTimeout = 30 * time.Second
	// APIVersion is reported in the metadata attached to every result.
	APIVersion = "plant_id:4.3.1"

	MaxImageBytes    = 10 * 1024 * 1024
	MaxIdentifyCount = 5

	healthDetails = "local_name,description,url,treatment,classification,common_names,cause"
)

var (
	// ErrNotConfigured is returned when no API key was supplied.
	ErrNotConfigured = errors.New("plant.id api key is not configured")
	// ErrNotImage is returned by Sniff for non-image content.
	ErrNotImage = errors.New("only image files are allowed")
	// ErrImageTooLarge is returned by Sniff above MaxImageBytes.
	ErrImageTooLarge = errors.New("image size should be less than 10MB")
)

// Config holds the API key and endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Image is one uploaded image with its sniffed MIME type.
type Image struct {
	Data []byte
	MIME string
	Ext  string
}

// DataURL renders the image as a base64 data URL.
func (i Image) DataURL() string {
	return "data:" + i.MIME + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Location is an optional capture location.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Sniff validates data as an image and detects its type from content.
func Sniff(data []byte) (Image, error) {
	if len(data) > MaxImageBytes {
		return Image{}, ErrImageTooLarge
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Image{}, ErrNotImage
	}
	return Image{Data: data, MIME: mt.String(), Ext: mt.Extension()}, nil
}

// Client calls Plant.id.
type Client struct {
	rest       *resty.Client
	configured bool
}

// New builds a client. A missing key is allowed; every call then fails
// with ErrNotConfigured so the handler can report it.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		rest: restclient.New(ServiceName, restclient.Options{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Headers: map[string]string{"Api-Key": cfg.APIKey},
		}),
		configured: cfg.APIKey != "",
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.configured }

type healthRequest struct {
	Images        []string `json:"images"`
	SimilarImages bool     `json:"similar_images"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

type identifyRequest struct {
	Images    []string `json:"images"`
	Modifiers []string `json:"modifiers"`
	Language  string   `json:"language"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HealthAssessment runs a crop health assessment on the images.
func (c *Client) HealthAssessment(ctx context.Context, images []Image, loc *Location) (json.RawMessage, error) {
	body := healthRequest{Images: dataURLs(images), SimilarImages: true}
	if loc != nil {
		body.Latitude, body.Longitude = &loc.Latitude, &loc.Longitude
	}
	return c.post(ctx, "health_assessment", "/health_assessment", map[string]string{
		"language": "en",
		"details":  healthDetails,
	}, body)
}

// Identify identifies the plant species. An empty language means "en".
func (c *Client) Identify(ctx context.Context, images []Image, loc *Location, language string) (json.RawMessage, error) {
	if language == "" {
		language = "en"
	}
	body := identifyRequest{
		Images:    dataURLs(images),
		Modifiers: []string{"crops_fast", "similar_images"},
		Language:  language,
	}
	if loc != nil {
		body.Latitude, body.Longitude = &loc.Latitude, &loc.Longitude
	}
	return c.post(ctx, "identify", "/identify", nil, body)
}

func (c *Client) post(ctx context.Context, op, path string, query map[string]string, body any) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "plantid."+op)
	defer span.End()

	if !c.configured {
		return nil, ErrNotConfigured
	}

	req := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Post(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		slog.Error("Plant.id request failed", "operation", op, "error", err)
		return nil, apperr.Upstream(ServiceName, "Plant.id request failed", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))

	if resp.IsError() {
		details := decodeDetails(resp.Body())
		msg := http.StatusText(resp.StatusCode())
		if m, ok := details.(map[string]any); ok {
			if s, ok := m["message"].(string); ok && s != "" {
				msg = s
			}
		}
		span.SetStatus(codes.Error, "provider error")
		slog.Warn("Plant.id returned an error", "operation", op, "status", resp.StatusCode())
		return nil, apperr.UpstreamHTTP(ServiceName, msg, resp.StatusCode(), details)
	}

	raw := resp.Body()
	if !json.Valid(raw) {
		return nil, apperr.UpstreamBody(ServiceName, "Plant.id returned an unreadable response", errors.New("invalid json"))
	}
	return json.RawMessage(raw), nil
}

func decodeDetails(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

func dataURLs(images []Image) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.DataURL()
	}
	return out
}

// Metadata is attached to every result returned to clients.
type Metadata struct {
	ProcessedAt      string `json:"processed_at"`
	ImageCount       int    `json:"image_count"`
	LocationProvided bool   `json:"location_provided"`
	APIVersion       string `json:"api_version"`
}

// NewMetadata describes a call made at now.
func NewMetadata(imageCount int, locationProvided bool, now time.Time) Metadata {
	return Metadata{
		ProcessedAt:      now.UTC().Format("2006-01-02T15:04:05.000Z"),
		ImageCount:       imageCount,
		LocationProvided: locationProvided,
		APIVersion:       APIVersion,
	}
}

// WithMetadata returns the provider result with a "metadata" key added.
// Non-object results are wrapped under "result".
func WithMetadata(result json.RawMessage, meta Metadata) map[string]any {
	out := map[string]any{}
	if err := json.Unmarshal(result, &out); err != nil || out == nil {
		out = map[string]any{"result": result}
	}
	out["metadata"] = meta
	return out
}
