// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	// Two instances on separate registries must not collide.
	newTestMetrics(t)
	newTestMetrics(t)
}

func TestRecordChatRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordChatRequest("stream", true)
	m.RecordChatRequest("stream", true)
	m.RecordChatRequest("recommendation", false)

	if got := testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("stream", "success")); got != 2 {
		t.Errorf("stream success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("recommendation", "error")); got != 1 {
		t.Errorf("recommendation error = %v, want 1", got)
	}
}

func TestActiveStreams(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.StreamStarted()
	m.StreamStarted()
	m.StreamEnded(1.5, true)

	if got := testutil.ToFloat64(m.ActiveStreams); got != 1 {
		t.Errorf("active streams = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.StreamDurationSeconds); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestStreamErrorsAndIncomplete(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordStreamError(ErrorCodeClientDisconnect)
	m.RecordStreamError(ErrorCodeTruncated)
	m.RecordStreamError(ErrorCodeTruncated)
	m.RecordIncomplete()

	if got := testutil.ToFloat64(m.StreamErrorsTotal.WithLabelValues("truncated")); got != 2 {
		t.Errorf("truncated = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.IncompleteResponsesTotal); got != 1 {
		t.Errorf("incomplete = %v, want 1", got)
	}
}

func TestHistoryAndUpstream(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordHistoryOperation("list", true)
	m.RecordHistoryOperation("clear", false)
	m.RecordPersistenceFailure("save")
	m.RecordUpstreamError("plant.id", "timeout")
	m.RecordTimeToFirstDelta(0.3)

	expected := `
# HELP troforte_assist_upstream_errors_total Failed calls to external providers
# TYPE troforte_assist_upstream_errors_total counter
troforte_assist_upstream_errors_total{failure="timeout",service="plant.id"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "troforte_assist_upstream_errors_total"); err != nil {
		t.Error(err)
	}
	if got := testutil.ToFloat64(m.PersistenceFailuresTotal.WithLabelValues("save")); got != 1 {
		t.Errorf("persistence failures = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordChatRequest("stream", true)
	m.StreamStarted()
	m.StreamEnded(1, false)
	m.RecordTimeToFirstDelta(1)
	m.RecordStreamError(ErrorCodeWrite)
	m.RecordIncomplete()
	m.RecordHistoryOperation("get", true)
	m.RecordPersistenceFailure("save")
	m.RecordUpstreamError("together", "other")
}
