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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troforte/assist/services/assist/datatypes"
	"github.com/troforte/assist/services/assist/observability"
	"github.com/troforte/assist/services/assist/prompt"
	"github.com/troforte/assist/services/assist/relay"
)

// HandleChat serves POST /api/chat.
//
// # Description
//
// With ?mode=recommendation the reply is a single JSON object
// {"recommendation": ...} and nothing is persisted. Otherwise the turn is
// streamed as NDJSON envelopes and the conversation id is exposed in the
// X-Conversation-Id header.
//
// Errors raised before the stream headers are written are returned as
// {"error": ...}. After that every failure is reported in-band by the
// relay and the stream is closed.
func HandleChat(r *relay.Relay, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, err)
			return
		}
		mode := prompt.ParseMode(c.Query("mode"))

		if mode == prompt.Recommendation {
			if err := req.ValidateRecommendation(); err != nil {
				writeError(c, err)
				return
			}
			answer, err := r.Recommend(c.Request.Context(), req.Query)
			metrics.RecordChatRequest(mode.String(), err == nil)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, datatypes.RecommendationResponse{Recommendation: answer})
			return
		}

		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}
		writer, err := NewNDJSONWriter(c.Writer)
		if err != nil {
			writeError(c, err)
			return
		}
		outcome, err := r.Run(c.Request.Context(), relay.Request{
			ConversationID: req.ConversationID,
			DeviceID:       req.DeviceID,
			Query:          req.Query,
		}, writer)
		if err != nil {
			metrics.RecordChatRequest(mode.String(), false)
			writeError(c, err)
			return
		}
		metrics.RecordChatRequest(mode.String(), outcome.State == relay.Complete)
		slog.Debug("Chat stream closed",
			"conversation_id", req.ConversationID,
			"state", outcome.State.String(),
			"created", outcome.Created)
	}
}
