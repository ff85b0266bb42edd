// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/troforte/assist/services/assist/datatypes"
	"github.com/troforte/assist/services/assist/relay"
)

// ConversationIDHeader exposes the resolved conversation id on streams.
const ConversationIDHeader = "X-Conversation-Id"

// =============================================================================
// Implementation
// =============================================================================

// ndjsonWriter implements relay.StreamWriter over an HTTP response.
//
// # Description
//
// Each envelope is one JSON object followed by "\n", flushed immediately
// so the app can render tokens as they arrive. Begin writes the headers
// and flushes them before the completion request is opened.
//
// # Fields
//
//   - w: HTTP ResponseWriter for output
//   - flusher: http.Flusher interface for immediate send
//   - mu: Mutex protecting writes
//   - begun: headers were written
//   - closed: a terminal envelope was written
//
// # Thread Safety
//
// Safe for concurrent use. All writes are serialized via mutex.
//
// # Limitations
//
//   - Panics if ResponseWriter doesn't implement http.Flusher
//
// # Assumptions
//
//   - ResponseWriter supports http.Flusher interface
type ndjsonWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	begun   bool
	closed  bool
}

// errStreamClosed is returned by writes after the terminal envelope.
var errStreamClosed = errors.New("stream already finalized")

// NewNDJSONWriter creates a StreamWriter for w.
//
// # Outputs
//
//   - relay.StreamWriter: ready for Begin
//   - error: Non-nil if w doesn't support http.Flusher
func NewNDJSONWriter(w http.ResponseWriter) (relay.StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &ndjsonWriter{w: w, flusher: flusher}, nil
}

// Begin sets the streaming headers, writes the 200 status, and flushes.
func (n *ndjsonWriter) Begin(conversationID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.begun {
		return nil
	}
	SetNDJSONHeaders(n.w)
	n.w.Header().Set(ConversationIDHeader, conversationID)
	n.w.WriteHeader(http.StatusOK)
	n.flusher.Flush()
	n.begun = true
	return nil
}

func (n *ndjsonWriter) WriteContent(delta string) error {
	return n.write(datatypes.StreamEnvelope{Type: datatypes.EnvelopeContent, Data: delta}, false)
}

func (n *ndjsonWriter) WriteComplete() error {
	return n.write(datatypes.StreamEnvelope{Type: datatypes.EnvelopeComplete}, true)
}

func (n *ndjsonWriter) WriteError(message string) error {
	return n.write(datatypes.StreamEnvelope{Type: datatypes.EnvelopeError, Message: message}, true)
}

func (n *ndjsonWriter) write(env datatypes.StreamEnvelope, terminal bool) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errStreamClosed
	}
	if terminal {
		n.closed = true
	}
	data = append(data, '\n')
	if _, err := n.w.Write(data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	n.flusher.Flush()
	return nil
}

// SetNDJSONHeaders sets the headers of a chat stream.
//
// # Description
//
// Must be called before writing any body content. Disables proxy
// buffering so envelopes reach the client immediately.
func SetNDJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
