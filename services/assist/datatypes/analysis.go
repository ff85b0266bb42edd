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
	"time"
)

// AnalysisRecord is a persisted plant health assessment, stored under
// AnalysisKey(AnalysisID) and indexed per device.
type AnalysisRecord struct {
	AnalysisID string          `json:"analysisId"`
	DeviceID   string          `json:"deviceId,omitempty"`
	ImageURL   string          `json:"imageUrl"`
	CreatedAt  string          `json:"createdAt"`
	UpdatedAt  string          `json:"updatedAt"`
	Analysis   json.RawMessage `json:"analysis"`
}

// NewAnalysisRecord stamps a fresh record with now.
func NewAnalysisRecord(analysisID, deviceID, imageURL string, analysis json.RawMessage, now time.Time) *AnalysisRecord {
	ts := FormatTimestamp(now)
	return &AnalysisRecord{
		AnalysisID: analysisID,
		DeviceID:   deviceID,
		ImageURL:   imageURL,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		Analysis:   analysis,
	}
}

// OwnerDeviceID returns the device that owns the analysis.
func (a *AnalysisRecord) OwnerDeviceID() string { return a.DeviceID }

// AnalysisHistory is the response body of GET /api/analysis-history.
type AnalysisHistory struct {
	Analysis []AnalysisRecord `json:"analysis"`
}
