// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package restclient builds the resty clients used for every outbound
// provider call, with shared defaults and OpenTelemetry instrumentation.
package restclient

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// userAgent is sent on every outbound request.
const userAgent = "troforte-assist/1.0"

var (
	instrumentsOnce sync.Once
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
)

// Options configures a client.
//
// # Fields
//
//   - BaseURL: prefix for relative request paths, trailing slash trimmed
//   - Timeout: whole-request timeout; zero means none (required for streams)
//   - Headers: default headers, e.g. Api-Key
//   - AuthToken: bearer token
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Headers   map[string]string
	AuthToken string
}

// New returns a resty client for service. Each completed request records
// its duration on the outbound.request.duration histogram, labelled by
// service, method, and status code. Transport failures increment
// outbound.request.errors.
//
// # Examples
//
//	client := restclient.New("plant.id", restclient.Options{
//	    BaseURL: "https://api.plant.id/v3",
//	    Timeout: 30 * time.Second,
//	    Headers: map[string]string{"Api-Key": key},
//	})
func New(service string, opts Options) *resty.Client {
	initInstruments()

	c := resty.New().
		SetHeader("User-Agent", userAgent)
	if opts.BaseURL != "" {
		c.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	}
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}
	if len(opts.Headers) > 0 {
		c.SetHeaders(opts.Headers)
	}
	if opts.AuthToken != "" {
		c.SetAuthToken(opts.AuthToken)
	}

	c.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		ctx := resp.Request.Context()
		requestDuration.Record(ctx, resp.Time().Seconds(), metric.WithAttributes(
			attribute.String("service", service),
			attribute.String("method", resp.Request.Method),
			attribute.String("status_code", strconv.Itoa(resp.StatusCode())),
		))
		return nil
	})
	c.OnError(func(req *resty.Request, _ error) {
		ctx := context.Background()
		if req != nil {
			ctx = req.Context()
		}
		requestErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
	})
	return c
}

// initInstruments creates the instruments on the global meter. The otel
// global provider forwards them once a real provider is installed.
func initInstruments() {
	instrumentsOnce.Do(func() {
		meter := otel.Meter("troforte.assist.restclient")
		var err error
		requestDuration, err = meter.Float64Histogram(
			"outbound.request.duration",
			metric.WithDescription("Duration of outbound provider requests until response headers"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
		requestErrors, err = meter.Int64Counter(
			"outbound.request.errors",
			metric.WithDescription("Outbound provider requests that failed at the transport level"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}
