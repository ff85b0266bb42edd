// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package farmers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/troforte/assist/pkg/restclient"
	"github.com/troforte/assist/services/assist/apperr"
)

const (
	ServiceName    = "airtable"
	DefaultBaseURL = "https://api.airtable.com/v0"

	UsersTable  = "Users"
	FarmerTable = "Farmer Info"
)

// Record is one Airtable row.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

type recordList struct {
	Records []Record `json:"records"`
}

// AirtableConfig locates one Airtable base.
type AirtableConfig struct {
	APIKey  string
	BaseID  string
	BaseURL string
	Timeout time.Duration
}

// Airtable is a minimal REST client over one base.
type Airtable struct {
	rest *resty.Client
}

// NewAirtable returns a client for cfg.BaseID.
func NewAirtable(cfg AirtableConfig) (*Airtable, error) {
	if cfg.APIKey == "" || cfg.BaseID == "" {
		return nil, fmt.Errorf("airtable: api key and base id are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Airtable{
		rest: restclient.New(ServiceName, restclient.Options{
			BaseURL:   strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.BaseID,
			Timeout:   cfg.Timeout,
			AuthToken: cfg.APIKey,
		}),
	}, nil
}

func tablePath(table string) string { return "/" + url.PathEscape(table) }

// Select returns up to maxRecords rows matching formula.
func (a *Airtable) Select(ctx context.Context, table, formula string, maxRecords int) ([]Record, error) {
	var out recordList
	req := a.rest.R().SetContext(ctx).SetResult(&out).
		SetQueryParam("filterByFormula", formula)
	if maxRecords > 0 {
		req.SetQueryParam("maxRecords", strconv.Itoa(maxRecords))
	}
	resp, err := req.Get(tablePath(table))
	if err := check(resp, err, "select "+table); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Create inserts one row.
func (a *Airtable) Create(ctx context.Context, table string, fields map[string]any) (*Record, error) {
	var out recordList
	resp, err := a.rest.R().SetContext(ctx).
		SetBody(recordList{Records: []Record{{Fields: fields}}}).
		SetResult(&out).
		Post(tablePath(table))
	if err := check(resp, err, "create "+table); err != nil {
		return nil, err
	}
	if len(out.Records) == 0 {
		return nil, apperr.UpstreamBody(ServiceName, "Airtable returned no record", fmt.Errorf("create %s", table))
	}
	return &out.Records[0], nil
}

// Update patches the given fields of one row.
func (a *Airtable) Update(ctx context.Context, table, id string, fields map[string]any) (*Record, error) {
	var out Record
	resp, err := a.rest.R().SetContext(ctx).
		SetBody(map[string]any{"fields": fields}).
		SetResult(&out).
		Patch(tablePath(table) + "/" + url.PathEscape(id))
	if err := check(resp, err, "update "+table); err != nil {
		return nil, err
	}
	return &out, nil
}

// Find fetches one row by id. A missing row is reported as found=false.
func (a *Airtable) Find(ctx context.Context, table, id string) (*Record, bool, error) {
	var out Record
	resp, err := a.rest.R().SetContext(ctx).SetResult(&out).
		Get(tablePath(table) + "/" + url.PathEscape(id))
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil, false, nil
	}
	if err := check(resp, err, "find "+table); err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return apperr.Upstream(ServiceName, "Airtable request failed", fmt.Errorf("%s: %w", op, err))
	}
	if resp.IsError() {
		return apperr.UpstreamHTTP(ServiceName, "Airtable request failed", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

// QuoteFormula renders s as a double-quoted Airtable formula string.
func QuoteFormula(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
