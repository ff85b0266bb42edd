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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/datatypes"
	redisstore "github.com/troforte/assist/services/assist/store/redis"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestHistory(t *testing.T) (*History, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := redisstore.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	h := NewHistory(s)
	h.repo.now = func() time.Time { return fixedNow }
	return h, mr
}

func seed(t *testing.T, h *History, deviceID string, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
		_, err := h.repo.Create(context.Background(), ids[i], deviceID, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}
	return ids
}

// =============================================================================
// Repository
// =============================================================================

func TestResolve_CreatesConversation(t *testing.T) {
	h, mr := newTestHistory(t)
	device, id := uuid.NewString(), uuid.NewString()

	conv, created, err := h.repo.Resolve(context.Background(), id, device, "Which Troforte blend suits citrus orchards in sandy soil?")
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, datatypes.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Which Troforte blend suits citrus orchards in sand...", conv.Title)
	assert.Equal(t, "2025-03-14T09:26:53.000Z", conv.CreatedAt)

	stored, found, err := h.repo.Load(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, conv, stored)

	members, err := mr.List(datatypes.DeviceChatsKey(device))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, members)
	assert.Equal(t, datatypes.DeviceIndexTTL, mr.TTL(datatypes.DeviceChatsKey(device)))
}

func TestResolve_AppendsForOwner(t *testing.T) {
	h, _ := newTestHistory(t)
	device, id := uuid.NewString(), uuid.NewString()
	ctx := context.Background()

	_, _, err := h.repo.Resolve(ctx, id, device, "first")
	require.NoError(t, err)
	conv, created, err := h.repo.Resolve(ctx, id, device, "second")
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "second", conv.Messages[1].Content)
	assert.Equal(t, "first", conv.Title)
}

func TestResolve_ForeignDeviceLeavesRecordUnchanged(t *testing.T) {
	h, mr := newTestHistory(t)
	owner, intruder, id := uuid.NewString(), uuid.NewString(), uuid.NewString()
	ctx := context.Background()

	_, _, err := h.repo.Resolve(ctx, id, owner, "mine")
	require.NoError(t, err)
	before, err := mr.Get(datatypes.ChatKey(id))
	require.NoError(t, err)

	_, _, err = h.repo.Resolve(ctx, id, intruder, "not yours")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOwnership))
	assert.Equal(t, http.StatusForbidden, apperr.Status(err))

	after, err := mr.Get(datatypes.ChatKey(id))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, mr.Exists(datatypes.DeviceChatsKey(intruder)))
}

func TestLoad_UnreadableRecord(t *testing.T) {
	h, mr := newTestHistory(t)
	require.NoError(t, mr.Set(datatypes.ChatKey("broken"), "{not json"))

	_, _, err := h.repo.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
}

// =============================================================================
// History
// =============================================================================

func TestList_PaginatesFortyFive(t *testing.T) {
	h, _ := newTestHistory(t)
	device := uuid.NewString()
	ids := seed(t, h, device, 45)

	wantMore := []bool{true, true, false}
	wantRows := []int{20, 20, 5}
	for page := 1; page <= 3; page++ {
		got, err := h.List(context.Background(), device, page, 20)
		require.NoError(t, err)
		assert.Equal(t, wantRows[page-1], len(got.Conversations), "page %d", page)
		assert.Equal(t, datatypes.Pagination{
			CurrentPage: page,
			TotalPages:  3,
			TotalCount:  45,
			HasMore:     wantMore[page-1],
			Limit:       20,
		}, got.Pagination)
	}

	first, err := h.List(context.Background(), device, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, ids[44], first.Conversations[0].ConversationID, "newest first")
	assert.Equal(t, 1, first.Conversations[0].MessageCount)
	assert.Equal(t, "question 44", first.Conversations[0].LastMessage)
}

func TestList_ClampsLimit(t *testing.T) {
	h, _ := newTestHistory(t)
	device := uuid.NewString()
	seed(t, h, device, 3)

	got, err := h.List(context.Background(), device, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, got.Pagination.Limit)
	assert.Equal(t, 1, got.Pagination.CurrentPage)

	got, err = h.List(context.Background(), device, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, got.Pagination.Limit)
}

func TestList_PageBeyondEnd(t *testing.T) {
	h, _ := newTestHistory(t)
	device := uuid.NewString()
	seed(t, h, device, 20)

	for _, page := range []int{3, 1 << 60} {
		got, err := h.List(context.Background(), device, page, 16)
		require.NoError(t, err)
		assert.Empty(t, got.Conversations, "page %d", page)
		assert.Equal(t, page, got.Pagination.CurrentPage)
		assert.Equal(t, 2, got.Pagination.TotalPages)
		assert.False(t, got.Pagination.HasMore)
	}
}

func TestList_EmptyDevice(t *testing.T) {
	h, _ := newTestHistory(t)
	got, err := h.List(context.Background(), uuid.NewString(), 1, 20)
	require.NoError(t, err)
	assert.Empty(t, got.Conversations)
	assert.NotNil(t, got.Conversations)
	assert.Equal(t, 0, got.Pagination.TotalPages)
	assert.False(t, got.Pagination.HasMore)
}

func TestList_SkipsForeignAndBrokenRecords(t *testing.T) {
	h, mr := newTestHistory(t)
	device, other := uuid.NewString(), uuid.NewString()
	ctx := context.Background()
	mine := seed(t, h, device, 2)

	foreign := seed(t, h, other, 1)[0]
	_, err := mr.Lpush(datatypes.DeviceChatsKey(device), foreign)
	require.NoError(t, err)
	require.NoError(t, mr.Set(datatypes.ChatKey("broken"), "{oops"))
	_, err = mr.Lpush(datatypes.DeviceChatsKey(device), "broken")
	require.NoError(t, err)
	_, err = mr.Lpush(datatypes.DeviceChatsKey(device), "vanished")
	require.NoError(t, err)

	got, err := h.List(ctx, device, 1, 20)
	require.NoError(t, err)
	require.Len(t, got.Conversations, 2)
	assert.Equal(t, mine[1], got.Conversations[0].ConversationID)
	assert.Equal(t, mine[0], got.Conversations[1].ConversationID)
	assert.Equal(t, 5, got.Pagination.TotalCount)
}

func TestList_InvalidDevice(t *testing.T) {
	h, _ := newTestHistory(t)
	_, err := h.List(context.Background(), "not-a-uuid", 1, 20)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
	assert.Equal(t, "Invalid deviceId format", apperr.ClientMessage(err))

	_, err = h.List(context.Background(), "", 1, 20)
	assert.Equal(t, "Missing deviceId", apperr.ClientMessage(err))
}

func TestGet(t *testing.T) {
	h, _ := newTestHistory(t)
	device := uuid.NewString()
	id := seed(t, h, device, 1)[0]
	ctx := context.Background()

	conv, err := h.Get(ctx, id, device)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ConversationID)

	_, err = h.Get(ctx, uuid.NewString(), device)
	assert.Equal(t, http.StatusNotFound, apperr.Status(err))

	_, err = h.Get(ctx, id, uuid.NewString())
	assert.Equal(t, http.StatusForbidden, apperr.Status(err))

	_, err = h.Get(ctx, "", device)
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
}

func TestDelete(t *testing.T) {
	h, mr := newTestHistory(t)
	device := uuid.NewString()
	ids := seed(t, h, device, 2)
	ctx := context.Background()

	err := h.Delete(ctx, ids[0], uuid.NewString())
	assert.Equal(t, http.StatusForbidden, apperr.Status(err))
	assert.True(t, mr.Exists(datatypes.ChatKey(ids[0])))

	require.NoError(t, h.Delete(ctx, ids[0], device))
	assert.False(t, mr.Exists(datatypes.ChatKey(ids[0])))
	members, err := mr.List(datatypes.DeviceChatsKey(device))
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, members)

	err = h.Delete(ctx, ids[0], device)
	assert.Equal(t, http.StatusNotFound, apperr.Status(err))
}

func TestClear_EmptyDevice(t *testing.T) {
	h, _ := newTestHistory(t)
	n, err := h.Clear(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClear_DeletesOwnedAndUnlinksForeign(t *testing.T) {
	h, mr := newTestHistory(t)
	device, other := uuid.NewString(), uuid.NewString()
	ctx := context.Background()
	mine := seed(t, h, device, 3)
	foreign := seed(t, h, other, 1)[0]
	_, err := mr.Lpush(datatypes.DeviceChatsKey(device), foreign)
	require.NoError(t, err)

	n, err := h.Clear(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for _, id := range mine {
		assert.False(t, mr.Exists(datatypes.ChatKey(id)))
	}
	assert.True(t, mr.Exists(datatypes.ChatKey(foreign)))
	assert.False(t, mr.Exists(datatypes.DeviceChatsKey(device)))
	assert.True(t, mr.Exists(datatypes.DeviceChatsKey(other)))
}

func TestClear_DeletesUnreadableRecords(t *testing.T) {
	h, mr := newTestHistory(t)
	device := uuid.NewString()
	ctx := context.Background()
	ids := seed(t, h, device, 2)
	require.NoError(t, mr.Set(datatypes.ChatKey(ids[0]), "{oops"))

	n, err := h.Clear(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists(datatypes.ChatKey(ids[0])))
	assert.False(t, mr.Exists(datatypes.ChatKey(ids[1])))
	assert.False(t, mr.Exists(datatypes.DeviceChatsKey(device)))

	_, err = h.Get(ctx, ids[0], device)
	assert.Equal(t, http.StatusNotFound, apperr.Status(err))
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, 20, ClampPageSize(0))
	assert.Equal(t, 1, ClampPageSize(-3))
	assert.Equal(t, 1, ClampPageSize(1))
	assert.Equal(t, 50, ClampPageSize(51))
}

// =============================================================================
// Analyses
// =============================================================================

func TestAnalyses_SaveListGet(t *testing.T) {
	h, mr := newTestHistory(t)
	a := NewAnalyses(h.store)
	device, id := uuid.NewString(), uuid.NewString()
	ctx := context.Background()

	rec := datatypes.NewAnalysisRecord(id, device, "https://b.s3.ap-southeast-2.amazonaws.com/plant-images/x.jpg",
		json.RawMessage(`{"result":{"is_plant":{"binary":true}}}`), fixedNow)
	wrote, err := a.SaveIfAbsent(ctx, rec)
	require.NoError(t, err)
	assert.True(t, wrote)

	second := *rec
	second.ImageURL = "changed"
	wrote, err = a.SaveIfAbsent(ctx, &second)
	require.NoError(t, err)
	assert.False(t, wrote)
	members, err := mr.List(datatypes.DeviceAnalysisKey(device))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, members)

	history, err := a.List(ctx, device)
	require.NoError(t, err)
	require.Len(t, history.Analysis, 1)
	assert.Empty(t, history.Analysis[0].DeviceID)
	assert.NotEqual(t, "changed", history.Analysis[0].ImageURL)

	got, err := a.Get(ctx, id, device)
	require.NoError(t, err)
	assert.Equal(t, device, got.DeviceID)
	assert.JSONEq(t, `{"result":{"is_plant":{"binary":true}}}`, string(got.Analysis))

	_, err = a.Get(ctx, id, uuid.NewString())
	assert.Equal(t, http.StatusForbidden, apperr.Status(err))
	_, err = a.Get(ctx, uuid.NewString(), device)
	assert.Equal(t, http.StatusNotFound, apperr.Status(err))
	_, err = a.Get(ctx, "bad", device)
	assert.Equal(t, "Invalid ID format", apperr.ClientMessage(err))
}

func TestAnalyses_ListSkipsForeign(t *testing.T) {
	h, mr := newTestHistory(t)
	a := NewAnalyses(h.store)
	device, other := uuid.NewString(), uuid.NewString()
	ctx := context.Background()

	foreign := datatypes.NewAnalysisRecord(uuid.NewString(), other, "u", json.RawMessage(`{}`), fixedNow)
	_, err := a.SaveIfAbsent(ctx, foreign)
	require.NoError(t, err)
	_, err = mr.Lpush(datatypes.DeviceAnalysisKey(device), foreign.AnalysisID)
	require.NoError(t, err)

	history, err := a.List(ctx, device)
	require.NoError(t, err)
	assert.Empty(t, history.Analysis)
}

func TestAuthorize(t *testing.T) {
	conv := &datatypes.Conversation{DeviceID: "A"}
	assert.NoError(t, Authorize(conv, "A"))
	err := Authorize(conv, "a")
	assert.ErrorIs(t, err, ErrOwnership)
	assert.Equal(t, "Chat does not belong to this device", apperr.ClientMessage(err))
}
