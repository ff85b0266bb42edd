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

	"golang.org/x/sync/errgroup"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/datatypes"
	"github.com/troforte/assist/services/assist/store"
)

// Analyses stores plant health assessments per device. It shares the
// index layout and ownership rule of conversations.
type Analyses struct {
	store store.Store
}

// NewAnalyses returns an Analyses over s.
func NewAnalyses(s store.Store) *Analyses {
	return &Analyses{store: s}
}

// SaveIfAbsent stores rec and links it into the device index unless a
// record with the same id already exists. Reports whether it wrote.
func (a *Analyses) SaveIfAbsent(ctx context.Context, rec *datatypes.AnalysisRecord) (bool, error) {
	var existing datatypes.AnalysisRecord
	found, err := a.store.Get(ctx, datatypes.AnalysisKey(rec.AnalysisID), &existing)
	if err != nil && !isDecodeError(err) {
		return false, apperr.Persistence("Failed to load analysis", err)
	}
	if found {
		return false, nil
	}
	if err := a.store.Set(ctx, datatypes.AnalysisKey(rec.AnalysisID), rec); err != nil {
		return false, apperr.Persistence("Failed to save analysis", err)
	}
	if err := a.store.ListPrepend(ctx, datatypes.DeviceAnalysisKey(rec.DeviceID), rec.AnalysisID); err != nil {
		return false, apperr.Persistence("Failed to index analysis", err)
	}
	return true, nil
}

// Get returns one analysis owned by deviceID. Both ids must be UUIDs.
func (a *Analyses) Get(ctx context.Context, analysisID, deviceID string) (*datatypes.AnalysisRecord, error) {
	if analysisID == "" || deviceID == "" {
		return nil, apperr.Validation("Missing analysisId or deviceId")
	}
	if !datatypes.IsValidDeviceID(analysisID) || !datatypes.IsValidDeviceID(deviceID) {
		return nil, apperr.Validation("Invalid ID format")
	}
	var rec datatypes.AnalysisRecord
	found, err := a.store.Get(ctx, datatypes.AnalysisKey(analysisID), &rec)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch analysis", err)
	}
	if !found {
		return nil, apperr.NotFound("Analysis not found")
	}
	if err := Authorize(&rec, deviceID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns every analysis in the device index, newest first. Foreign,
// missing, and unreadable records are skipped. DeviceID is omitted from
// the listed records.
func (a *Analyses) List(ctx context.Context, deviceID string) (*datatypes.AnalysisHistory, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}
	ids, err := a.store.ListRange(ctx, datatypes.DeviceAnalysisKey(deviceID), 0, -1)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch analysis history", err)
	}

	slots := make([]*datatypes.AnalysisRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			var rec datatypes.AnalysisRecord
			found, err := a.store.Get(gctx, datatypes.AnalysisKey(id), &rec)
			if err != nil {
				slog.Warn("Skipping unreadable analysis", "analysis_id", id, "error", err)
				return nil
			}
			if !found || Authorize(&rec, deviceID) != nil {
				return nil
			}
			rec.DeviceID = ""
			slots[i] = &rec
			return nil
		})
	}
	_ = g.Wait()

	out := &datatypes.AnalysisHistory{Analysis: make([]datatypes.AnalysisRecord, 0, len(slots))}
	for _, rec := range slots {
		if rec != nil {
			out.Analysis = append(out.Analysis, *rec)
		}
	}
	return out, nil
}
