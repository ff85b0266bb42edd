// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry sets up OpenTelemetry tracing and metrics for the
// assist service.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// ErrNilContext is returned by Init when ctx is nil.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls telemetry behavior.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// TraceExporter is "otlp", "stdout", or "none".
	TraceExporter string

	// MetricExporter is "prometheus" or "stdout".
	MetricExporter string

	// OTLPEndpoint is the collector's gRPC address, e.g. "otel-collector:4317".
	OTLPEndpoint string

	// Registry receives the otel Prometheus collector. Required for the
	// prometheus exporter; the service metrics share it so one /metrics
	// endpoint serves both.
	Registry *prometheus.Registry

	// Output receives stdout exporter output. Defaults to os.Stdout.
	Output io.Writer
}

// Telemetry owns the installed providers.
type Telemetry struct {
	handler   http.Handler
	shutdowns []func(context.Context) error
}

// Init installs the global TracerProvider, MeterProvider, and W3C
// propagators.
//
// # Outputs
//
//   - *Telemetry: call Shutdown on exit
//   - error: exporter construction failure
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	t := &Telemetry{}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.TraceExporter != "none" && cfg.TraceExporter != "" {
		tp, err := initTracer(ctx, cfg, res, t)
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		t.shutdowns = append(t.shutdowns, tp.Shutdown)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	mp, err := initMeter(cfg, res, t)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("init meter: %w", err)
	}
	otel.SetMeterProvider(mp)
	t.shutdowns = append(t.shutdowns, mp.Shutdown)

	return t, nil
}

// MetricsHandler serves the Prometheus registry, or nil when another
// metric exporter is in use.
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.handler
}

// Shutdown flushes and stops every provider, last installed first.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource, t *Telemetry) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	switch cfg.TraceExporter {
	case "otlp":
		conn, err := grpc.NewClient(cfg.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial collector: %w", err)
		}
		t.shutdowns = append(t.shutdowns, func(context.Context) error { return conn.Close() })
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("create exporter: %w", err)
		}
	case "stdout":
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(cfg.Output))
		if err != nil {
			return nil, fmt.Errorf("create exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	), nil
}

func initMeter(cfg Config, res *resource.Resource, t *Telemetry) (*metric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "prometheus", "":
		if cfg.Registry == nil {
			return nil, errors.New("prometheus exporter needs a registry")
		}
		exporter, err := promexporter.New(promexporter.WithRegisterer(cfg.Registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		t.handler = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Output))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}
