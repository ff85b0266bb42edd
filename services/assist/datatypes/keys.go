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

import "time"

// DeviceIndexTTL is refreshed on the device conversation index on every
// new conversation.
const DeviceIndexTTL = 30 * 24 * time.Hour

// ChatKey is the record key of a conversation.
func ChatKey(conversationID string) string { return "chat:" + conversationID }

// DeviceChatsKey is the newest-first list of a device's conversation ids.
func DeviceChatsKey(deviceID string) string { return "device:" + deviceID + ":chats" }

// AnalysisKey is the record key of a plant analysis.
func AnalysisKey(analysisID string) string { return "analysis:" + analysisID }

// DeviceAnalysisKey is the newest-first list of a device's analysis ids.
func DeviceAnalysisKey(deviceID string) string { return "device:" + deviceID + ":analysis" }
