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
	"time"
	"unicode/utf8"
)

// =============================================================================
// Constants
// =============================================================================

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	// TitleMaxChars is the number of query characters kept in a derived title.
	TitleMaxChars = 50

	// PreviewMaxChars is the number of characters kept in a history preview.
	PreviewMaxChars = 100

	// ellipsis marks truncated titles and previews.
	ellipsis = "..."

	// IncompleteAnnotation is appended to assistant output that was cut
	// short by a stream failure.
	IncompleteAnnotation = "\n\n[Response incomplete: the connection was interrupted]"

	// TimestampLayout is the ISO-8601 layout used for every stored timestamp.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// =============================================================================
// Records
// =============================================================================

// Message is a single turn inside a Conversation.
//
// # Fields
//
//   - Role: "user" or "assistant"
//   - Content: turn text; assistant content has reasoning stripped
//   - Timestamp: ISO-8601, set at append time
//   - Incomplete: true only for assistant output salvaged from a failed stream
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Incomplete bool   `json:"incomplete,omitempty"`
}

// Conversation is the persisted record stored under ChatKey(ConversationID).
//
// # Description
//
// A Conversation is created lazily on the first chat turn for a
// caller-chosen id and mutated on every subsequent turn. DeviceID and
// Title are fixed at creation. Messages is append-only and kept in
// chronological order.
//
// # Thread Safety
//
// Not safe for concurrent mutation. Each request owns its own copy.
type Conversation struct {
	ConversationID string    `json:"conversationId"`
	DeviceID       string    `json:"deviceId"`
	Title          string    `json:"title"`
	CreatedAt      string    `json:"createdAt"`
	UpdatedAt      string    `json:"updatedAt"`
	Messages       []Message `json:"messages"`
}

// NewConversation builds a fresh Conversation whose first message is the
// opening user query.
func NewConversation(conversationID, deviceID, query string, now time.Time) *Conversation {
	ts := FormatTimestamp(now)
	return &Conversation{
		ConversationID: conversationID,
		DeviceID:       deviceID,
		Title:          DeriveTitle(query),
		CreatedAt:      ts,
		UpdatedAt:      ts,
		Messages: []Message{
			{Role: RoleUser, Content: query, Timestamp: ts},
		},
	}
}

// OwnerDeviceID returns the device that owns the conversation.
func (c *Conversation) OwnerDeviceID() string { return c.DeviceID }

// AppendUser appends a user turn and refreshes UpdatedAt.
func (c *Conversation) AppendUser(content string, now time.Time) {
	c.append(Message{Role: RoleUser, Content: content}, now)
}

// AppendAssistant appends an assistant turn. When incomplete is true the
// message is flagged and IncompleteAnnotation is added to its content.
func (c *Conversation) AppendAssistant(content string, incomplete bool, now time.Time) {
	msg := Message{Role: RoleAssistant, Content: content, Incomplete: incomplete}
	if incomplete {
		msg.Content += IncompleteAnnotation
	}
	c.append(msg, now)
}

func (c *Conversation) append(msg Message, now time.Time) {
	ts := FormatTimestamp(now)
	msg.Timestamp = ts
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = ts
}

// Summary projects the conversation onto a history listing row.
func (c *Conversation) Summary() ConversationSummary {
	s := ConversationSummary{
		ConversationID: c.ConversationID,
		Title:          c.Title,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		MessageCount:   len(c.Messages),
	}
	if n := len(c.Messages); n > 0 {
		s.LastMessage = Truncate(c.Messages[n-1].Content, PreviewMaxChars)
	}
	return s
}

// =============================================================================
// History Views
// =============================================================================

// ConversationSummary is one row of a history page.
type ConversationSummary struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
	MessageCount   int    `json:"messageCount"`
	LastMessage    string `json:"lastMessage"`
}

// Pagination describes where a HistoryPage sits in the full listing.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasMore     bool `json:"hasMore"`
	Limit       int  `json:"limit"`
}

// HistoryPage is the response body of GET /api/history.
type HistoryPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// =============================================================================
// Helper Functions
// =============================================================================

// DeriveTitle returns the first TitleMaxChars characters of query,
// suffixed with "..." iff the query was longer.
//
// # Examples
//
//	DeriveTitle("How much Troforte per hectare?") // unchanged
//	DeriveTitle(strings.Repeat("a", 60))          // 50 a's + "..."
func DeriveTitle(query string) string {
	return Truncate(query, TitleMaxChars)
}

// Truncate cuts s to at most n characters (runes), adding "..." when
// anything was removed.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + ellipsis
}

// FormatTimestamp renders t in the stored ISO-8601 form (UTC, milliseconds).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
