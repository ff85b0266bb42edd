// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/datatypes"
	"github.com/troforte/assist/services/assist/store"
)

// Repository reads and writes Conversation records and the per-device
// index.
//
// # Description
//
// The record write and the index prepend on creation are two separate
// store calls. A failure between them leaves a record reachable by id
// but missing from the device listing.
//
// Concurrent writers to the same conversation are not serialized. The
// last Save wins.
type Repository struct {
	store store.Store
	now   func() time.Time
}

// NewRepository returns a Repository over s.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s, now: time.Now}
}

// Now returns the repository clock.
func (r *Repository) Now() time.Time { return r.now() }

// Load fetches a conversation. It reports false when the id is unknown.
func (r *Repository) Load(ctx context.Context, conversationID string) (*datatypes.Conversation, bool, error) {
	var conv datatypes.Conversation
	found, err := r.store.Get(ctx, datatypes.ChatKey(conversationID), &conv)
	if err != nil {
		return nil, false, apperr.Persistence("Failed to load conversation", err)
	}
	if !found {
		return nil, false, nil
	}
	return &conv, true, nil
}

// Save overwrites the stored record.
func (r *Repository) Save(ctx context.Context, conv *datatypes.Conversation) error {
	if err := r.store.Set(ctx, datatypes.ChatKey(conv.ConversationID), conv); err != nil {
		return apperr.Persistence("Failed to save conversation", err)
	}
	return nil
}

// Create stores a new conversation opened by query and links it into the
// device index, refreshing the index expiry.
func (r *Repository) Create(ctx context.Context, conversationID, deviceID, query string) (*datatypes.Conversation, error) {
	conv := datatypes.NewConversation(conversationID, deviceID, query, r.now())
	if err := r.Save(ctx, conv); err != nil {
		return nil, err
	}
	indexKey := datatypes.DeviceChatsKey(deviceID)
	if err := r.store.ListPrepend(ctx, indexKey, conversationID); err != nil {
		return nil, apperr.Persistence("Failed to index conversation", err)
	}
	if err := r.store.Expire(ctx, indexKey, datatypes.DeviceIndexTTL); err != nil {
		// The record and index exist; a missed TTL refresh only delays expiry.
		slog.Warn("Failed to refresh device index expiry", "device_id", deviceID, "error", err)
	}
	return conv, nil
}

// Resolve returns the conversation a chat turn belongs to with query
// already appended and persisted.
//
// # Description
//
// An unknown id creates the conversation. A known id owned by another
// device fails with an ownership error and nothing is written.
//
// # Outputs
//
//   - *datatypes.Conversation: the record including the new user message
//   - bool: true when the conversation was created by this call
//   - error: ownership or persistence error
func (r *Repository) Resolve(ctx context.Context, conversationID, deviceID, query string) (*datatypes.Conversation, bool, error) {
	conv, found, err := r.Load(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		conv, err = r.Create(ctx, conversationID, deviceID, query)
		return conv, err == nil, err
	}
	if err := Authorize(conv, deviceID); err != nil {
		return nil, false, err
	}
	conv.AppendUser(query, r.now())
	if err := r.Save(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

// isDecodeError reports whether err came from an unreadable record.
func isDecodeError(err error) bool {
	var decodeErr *store.DecodeError
	return errors.As(err, &decodeErr)
}
