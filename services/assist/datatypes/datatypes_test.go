// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/troforte/assist/services/assist/apperr"
)

// =============================================================================
// Device ID Tests
// =============================================================================

func TestIsValidDeviceID_Accepts(t *testing.T) {
	valid := []string{
		"550e8400-e29b-41d4-a716-446655440000",
		"550E8400-E29B-41D4-A716-446655440000",
		"00000000-0000-1000-8000-000000000000",
		"ffffffff-ffff-5fff-bfff-ffffffffffff",
		"123e4567-e89b-12d3-9456-426614174000",
	}
	for _, id := range valid {
		assert.True(t, IsValidDeviceID(id), id)
	}
}

func TestIsValidDeviceID_Rejects(t *testing.T) {
	invalid := map[string]string{
		"empty":           "",
		"short":           "550e8400-e29b-41d4-a716-44665544000",
		"long":            "550e8400-e29b-41d4-a716-4466554400000",
		"non hex":         "550e8400-e29b-41d4-a716-44665544000g",
		"version 0":       "550e8400-e29b-01d4-a716-446655440000",
		"version 6":       "550e8400-e29b-61d4-a716-446655440000",
		"bad variant":     "550e8400-e29b-41d4-c716-446655440000",
		"no dashes":       "550e8400e29b41d4a716446655440000",
		"braces":          "{550e8400-e29b-41d4-a716-446655440000}",
		"trailing space":  "550e8400-e29b-41d4-a716-446655440000 ",
		"dash misplaced":  "550e840-0e29b-41d4-a716-446655440000",
	}
	for name, id := range invalid {
		t.Run(name, func(t *testing.T) {
			assert.False(t, IsValidDeviceID(id))
		})
	}
}

// =============================================================================
// Request Validation Tests
// =============================================================================

func TestChatRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantMsg string
	}{
		{"ok", ChatRequest{Query: "hi", DeviceID: "550e8400-e29b-41d4-a716-446655440000", ConversationID: "c1"}, ""},
		{"blank query", ChatRequest{Query: "  ", DeviceID: "550e8400-e29b-41d4-a716-446655440000", ConversationID: "c1"}, "Query is required"},
		{"missing device", ChatRequest{Query: "hi", ConversationID: "c1"}, "Missing deviceId"},
		{"bad device", ChatRequest{Query: "hi", DeviceID: "nope", ConversationID: "c1"}, "Invalid deviceId format"},
		{"missing conversation", ChatRequest{Query: "hi", DeviceID: "550e8400-e29b-41d4-a716-446655440000"}, "conversationId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, apperr.ClientMessage(err))
		})
	}
}

func TestChatRequest_ValidateRecommendation(t *testing.T) {
	assert.NoError(t, (&ChatRequest{Query: "yellow leaves"}).ValidateRecommendation())
	assert.Error(t, (&ChatRequest{}).ValidateRecommendation())
	assert.Error(t, (&ChatRequest{Query: "x", DeviceID: "bad"}).ValidateRecommendation())
}

func TestDeleteChatRequest_Validate(t *testing.T) {
	err := (&DeleteChatRequest{DeviceID: "550e8400-e29b-41d4-a716-446655440000"}).Validate()
	require.Error(t, err)
	assert.Equal(t, "conversationId is required", apperr.ClientMessage(err))
}

// =============================================================================
// Conversation Tests
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short question", DeriveTitle("short question"))

	exact := strings.Repeat("b", TitleMaxChars)
	assert.Equal(t, exact, DeriveTitle(exact))

	long := strings.Repeat("a", 50) + "tail"
	assert.Equal(t, strings.Repeat("a", 50)+"...", DeriveTitle(long))

	multibyte := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50)+"...", DeriveTitle(multibyte))
}

func TestNewConversation(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	conv := NewConversation("c1", "550e8400-e29b-41d4-a716-446655440000", "What is Troforte?", now)

	require.Len(t, conv.Messages, 1)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "What is Troforte?", conv.Title)
	assert.Equal(t, "2025-03-01T10:00:00.000Z", conv.CreatedAt)
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)
}

func TestConversation_AppendAssistantIncomplete(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	conv := NewConversation("c1", "d", "q", start)
	conv.AppendAssistant("partial answer", true, start.Add(time.Minute))

	last := conv.Messages[len(conv.Messages)-1]
	assert.True(t, last.Incomplete)
	assert.True(t, strings.HasSuffix(last.Content, IncompleteAnnotation))
	assert.Equal(t, "2025-03-01T10:01:00.000Z", conv.UpdatedAt)
	assert.Equal(t, "2025-03-01T10:00:00.000Z", conv.CreatedAt)
}

func TestConversation_Summary(t *testing.T) {
	now := time.Now()
	conv := NewConversation("c1", "d", "q", now)
	conv.AppendAssistant(strings.Repeat("x", 150), false, now)

	s := conv.Summary()
	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, strings.Repeat("x", 100)+"...", s.LastMessage)
}

func TestStreamEnvelope_JSON(t *testing.T) {
	b, err := json.Marshal(StreamEnvelope{Type: EnvelopeComplete})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"complete"}`, string(b))

	b, err = json.Marshal(StreamEnvelope{Type: EnvelopeError, Message: StreamErrorMessage})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"Connection error"}`, string(b))
}
