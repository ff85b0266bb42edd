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

// EnvelopeType is the discriminator of a streamed NDJSON line.
type EnvelopeType string

const (
	EnvelopeContent  EnvelopeType = "content"
	EnvelopeComplete EnvelopeType = "complete"
	EnvelopeError    EnvelopeType = "error"
)

// StreamErrorMessage is the only error text ever sent in-band.
const StreamErrorMessage = "Connection error"

// StreamEnvelope is one newline-terminated JSON object of a chat stream.
//
//	{"type":"content","data":"Troforte "}
//	{"type":"complete"}
//	{"type":"error","message":"Connection error"}
type StreamEnvelope struct {
	Type    EnvelopeType `json:"type"`
	Data    string       `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
}

// ErrorResponse is the body of every non-streamed failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RecommendationResponse is the body of POST /api/chat?mode=recommendation.
type RecommendationResponse struct {
	Recommendation string `json:"recommendation"`
}

// DeleteResponse is the body of DELETE /api/chat and DELETE /api/history.
type DeleteResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount *int   `json:"deletedCount,omitempty"`
}
