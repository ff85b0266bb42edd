// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "troforte_assist"

const (
	chatSubsystem    = "chat"
	historySubsystem = "history"
	upstreamSubsys   = "upstream"
)

// Metrics holds the Prometheus collectors for the gateway.
//
// # Description
//
// Collectors are registered on the registry passed to NewMetrics rather
// than the global default, so tests can build isolated instances. Every
// method is safe on a nil *Metrics, which records nothing.
//
// # Metrics Exposed
//
//   - troforte_assist_chat_requests_total{mode,status}
//   - troforte_assist_chat_stream_duration_seconds{status}
//   - troforte_assist_chat_time_to_first_delta_seconds
//   - troforte_assist_chat_active_streams
//   - troforte_assist_chat_stream_errors_total{error_code}
//   - troforte_assist_chat_incomplete_responses_total
//   - troforte_assist_history_operations_total{operation,status}
//   - troforte_assist_history_persistence_failures_total{operation}
//   - troforte_assist_upstream_errors_total{service,failure}
type Metrics struct {
	ChatRequestsTotal        *prometheus.CounterVec
	StreamDurationSeconds    *prometheus.HistogramVec
	TimeToFirstDeltaSeconds  prometheus.Histogram
	ActiveStreams            prometheus.Gauge
	StreamErrorsTotal        *prometheus.CounterVec
	IncompleteResponsesTotal prometheus.Counter
	HistoryOperationsTotal   *prometheus.CounterVec
	PersistenceFailuresTotal *prometheus.CounterVec
	UpstreamErrorsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Chat requests by mode and outcome",
			},
			[]string{"mode", "status"},
		),
		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Time from stream headers to the terminal envelope",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		TimeToFirstDeltaSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "time_to_first_delta_seconds",
				Help:      "Time from opening the completion stream to the first content delta",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),
		ActiveStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Chat streams currently open",
			},
		),
		StreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_errors_total",
				Help:      "Chat streams that ended on the error path, by cause",
			},
			[]string{"error_code"},
		),
		IncompleteResponsesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "incomplete_responses_total",
				Help:      "Partial assistant responses stored with the incomplete flag",
			},
		),
		HistoryOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: historySubsystem,
				Name:      "operations_total",
				Help:      "History API operations by outcome",
			},
			[]string{"operation", "status"},
		),
		PersistenceFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: historySubsystem,
				Name:      "persistence_failures_total",
				Help:      "Key-value store failures by operation",
			},
			[]string{"operation"},
		),
		UpstreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: upstreamSubsys,
				Name:      "errors_total",
				Help:      "Failed calls to external providers",
			},
			[]string{"service", "failure"},
		),
	}
}

// ErrorCode labels why a stream took the error path.
type ErrorCode string

const (
	ErrorCodeUpstream         ErrorCode = "upstream"
	ErrorCodeTruncated        ErrorCode = "truncated"
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
	ErrorCodeWrite            ErrorCode = "write"
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordChatRequest counts one chat request.
func (m *Metrics) RecordChatRequest(mode string, success bool) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(mode, statusLabel(success)).Inc()
}

// StreamStarted increments the active stream gauge.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active stream gauge and observes duration.
func (m *Metrics) StreamEnded(seconds float64, success bool) {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
	m.StreamDurationSeconds.WithLabelValues(statusLabel(success)).Observe(seconds)
}

func (m *Metrics) RecordTimeToFirstDelta(seconds float64) {
	if m == nil {
		return
	}
	m.TimeToFirstDeltaSeconds.Observe(seconds)
}

func (m *Metrics) RecordStreamError(code ErrorCode) {
	if m == nil {
		return
	}
	m.StreamErrorsTotal.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) RecordIncomplete() {
	if m == nil {
		return
	}
	m.IncompleteResponsesTotal.Inc()
}

// RecordHistoryOperation counts one list, get, delete, or clear call.
func (m *Metrics) RecordHistoryOperation(operation string, success bool) {
	if m == nil {
		return
	}
	m.HistoryOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

func (m *Metrics) RecordPersistenceFailure(operation string) {
	if m == nil {
		return
	}
	m.PersistenceFailuresTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordUpstreamError(service, failure string) {
	if m == nil {
		return
	}
	m.UpstreamErrorsTotal.WithLabelValues(service, failure).Inc()
}
