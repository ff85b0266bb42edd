// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/troforte/assist/services/assist/conversation"
	"github.com/troforte/assist/services/assist/datatypes"
	"github.com/troforte/assist/services/assist/observability"
)

// HandleListHistory serves GET /api/history?deviceId&page&limit.
func HandleListHistory(h *conversation.History, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := queryInt(c, "page", 1)
		limit := queryInt(c, "limit", conversation.DefaultPageSize)

		result, err := h.List(c.Request.Context(), c.Query("deviceId"), page, limit)
		metrics.RecordHistoryOperation("list", err == nil)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleGetChat serves GET /api/chatById?conversationId&deviceId.
func HandleGetChat(h *conversation.History, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := h.Get(c.Request.Context(), c.Query("conversationId"), c.Query("deviceId"))
		metrics.RecordHistoryOperation("get", err == nil)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

// HandleDeleteChat serves DELETE /api/chat.
func HandleDeleteChat(h *conversation.History, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.DeleteChatRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, err)
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}
		err := h.Delete(c.Request.Context(), req.ConversationID, req.DeviceID)
		metrics.RecordHistoryOperation("delete", err == nil)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.DeleteResponse{Success: true, Message: "Chat deleted successfully"})
	}
}

// HandleClearHistory serves DELETE /api/history.
func HandleClearHistory(h *conversation.History, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ClearHistoryRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, err)
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}
		deleted, err := h.Clear(c.Request.Context(), req.DeviceID)
		metrics.RecordHistoryOperation("clear", err == nil)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.DeleteResponse{
			Success:      true,
			Message:      "Chat history cleared",
			DeletedCount: &deleted,
		})
	}
}

// queryInt parses an integer query parameter, falling back to def when
// absent or malformed.
func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
