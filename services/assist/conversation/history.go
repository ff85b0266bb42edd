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
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/datatypes"
	"github.com/troforte/assist/services/assist/store"
)

var tracer = otel.Tracer("troforte.assist.conversation")

const (
	DefaultPageSize = 20
	MaxPageSize     = 50

	// fetchConcurrency bounds parallel record reads for one listing.
	fetchConcurrency = 8
)

// History serves the conversation listing and management operations.
type History struct {
	store store.Store
	repo  *Repository
}

// NewHistory returns a History over s.
func NewHistory(s store.Store) *History {
	return &History{store: s, repo: NewRepository(s)}
}

// ClampPageSize applies the default and bounds to a requested page size.
// Zero means absent and maps to DefaultPageSize.
func ClampPageSize(limit int) int {
	switch {
	case limit == 0:
		return DefaultPageSize
	case limit < 1:
		return 1
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// List returns one page of the device's conversations, newest first.
//
// # Description
//
// The page window is taken from the device index, then each record is
// fetched in parallel. Records that are missing, unreadable, or owned by
// another device are dropped from the page without failing the request,
// so a page may hold fewer than limit rows. TotalCount is the index
// length.
//
// # Inputs
//
//   - deviceID: must match the device id format
//   - page: 1-based; values below 1 become 1
//   - limit: clamped to [1, MaxPageSize]; 0 means DefaultPageSize
func (h *History) List(ctx context.Context, deviceID string, page, limit int) (*datatypes.HistoryPage, error) {
	ctx, span := tracer.Start(ctx, "conversation.History.List")
	defer span.End()

	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}
	limit = ClampPageSize(limit)
	if page < 1 {
		page = 1
	}
	span.SetAttributes(attribute.Int("history.page", page), attribute.Int("history.limit", limit))

	indexKey := datatypes.DeviceChatsKey(deviceID)
	total, err := h.store.ListLength(ctx, indexKey)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch chat history", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	// Pages past the end are empty. Checking first also keeps the offset
	// from overflowing into a negative, tail-relative index.
	var ids []string
	if page <= totalPages {
		start := int64(page-1) * int64(limit)
		ids, err = h.store.ListRange(ctx, indexKey, start, start+int64(limit)-1)
		if err != nil {
			return nil, apperr.Persistence("Failed to fetch chat history", err)
		}
	}

	slots := make([]*datatypes.ConversationSummary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			conv, found, err := h.repo.Load(gctx, id)
			switch {
			case err != nil && isDecodeError(err):
				slog.Warn("Skipping unreadable conversation", "conversation_id", id, "error", err)
				return nil
			case err != nil:
				return err
			case !found:
				return nil
			case Authorize(conv, deviceID) != nil:
				slog.Warn("Skipping foreign conversation in device index", "conversation_id", id, "device_id", deviceID)
				return nil
			}
			summary := conv.Summary()
			slots[i] = &summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries := make([]datatypes.ConversationSummary, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			summaries = append(summaries, *s)
		}
	}

	return &datatypes.HistoryPage{
		Conversations: summaries,
		Pagination: datatypes.Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalCount:  int(total),
			HasMore:     page < totalPages,
			Limit:       limit,
		},
	}, nil
}

// Get returns a full conversation owned by deviceID.
func (h *History) Get(ctx context.Context, conversationID, deviceID string) (*datatypes.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, apperr.Validation("Missing conversationId")
	}
	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}
	conv, found, err := h.repo.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("Chat not found")
	}
	if err := Authorize(conv, deviceID); err != nil {
		return nil, err
	}
	return conv, nil
}

// Delete unlinks a conversation from the device index and removes the
// record.
func (h *History) Delete(ctx context.Context, conversationID, deviceID string) error {
	ctx, span := tracer.Start(ctx, "conversation.History.Delete")
	defer span.End()

	conv, err := h.Get(ctx, conversationID, deviceID)
	if err != nil {
		return err
	}
	if err := h.store.ListRemove(ctx, datatypes.DeviceChatsKey(deviceID), conv.ConversationID); err != nil {
		return apperr.Persistence("Failed to delete chat", err)
	}
	if err := h.store.Delete(ctx, datatypes.ChatKey(conv.ConversationID)); err != nil {
		return apperr.Persistence("Failed to delete chat", err)
	}
	return nil
}

// Clear deletes every conversation in the device index and then the index
// itself, returning how many records were deleted.
//
// # Description
//
// Records owned by another device are unlinked with the index but left in
// place. Unreadable records have no provable owner and are deleted with
// the index. Missing entries are skipped. The loop is not
// atomic: a failure part way leaves the remaining records and the index
// intact, and a retry finishes the job.
func (h *History) Clear(ctx context.Context, deviceID string) (int, error) {
	ctx, span := tracer.Start(ctx, "conversation.History.Clear")
	defer span.End()

	if err := checkDeviceID(deviceID); err != nil {
		return 0, err
	}
	indexKey := datatypes.DeviceChatsKey(deviceID)
	ids, err := h.store.ListRange(ctx, indexKey, 0, -1)
	if err != nil {
		return 0, apperr.Persistence("Failed to clear chat history", err)
	}

	deleted := 0
	for _, id := range ids {
		conv, found, err := h.repo.Load(ctx, id)
		switch {
		case err != nil && isDecodeError(err):
			slog.Warn("Deleting unreadable conversation", "conversation_id", id, "error", err)
			if err := h.store.Delete(ctx, datatypes.ChatKey(id)); err != nil {
				return deleted, apperr.Persistence("Failed to clear chat history", err)
			}
			deleted++
			continue
		case err != nil:
			return deleted, err
		case !found:
			continue
		case Authorize(conv, deviceID) != nil:
			slog.Warn("Unlinking foreign conversation without deleting it", "conversation_id", id, "device_id", deviceID)
			continue
		}
		if err := h.store.Delete(ctx, datatypes.ChatKey(id)); err != nil {
			return deleted, apperr.Persistence("Failed to clear chat history", err)
		}
		deleted++
	}

	if err := h.store.Delete(ctx, indexKey); err != nil {
		return deleted, apperr.Persistence("Failed to clear chat history", err)
	}
	span.SetAttributes(attribute.Int("history.deleted", deleted))
	return deleted, nil
}

func checkDeviceID(deviceID string) error {
	if deviceID == "" {
		return apperr.Validation("Missing deviceId")
	}
	if !datatypes.IsValidDeviceID(deviceID) {
		return apperr.Validation("Invalid deviceId format")
	}
	return nil
}
