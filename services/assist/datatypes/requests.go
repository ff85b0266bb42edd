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
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/troforte/assist/services/assist/apperr"
)

// =============================================================================
// Validation Setup
// =============================================================================

// deviceIDPattern is the RFC-4122 UUID shape (versions 1-5, variant 10xx).
var deviceIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// requestValidate is the validator instance for request datatypes.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("deviceid", validateDeviceID)
	_ = requestValidate.RegisterValidation("notblank", validateNotBlank)
}

// IsValidDeviceID reports whether id matches the device identifier format.
//
// # Examples
//
//	IsValidDeviceID("550e8400-e29b-41d4-a716-446655440000") // true
//	IsValidDeviceID("550e8400-e29b-61d4-a716-446655440000") // false, version 6
func IsValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

func validateDeviceID(fl validator.FieldLevel) bool {
	return IsValidDeviceID(fl.Field().String())
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// =============================================================================
// Chat Requests
// =============================================================================

// ChatRequest is the body of POST /api/chat.
//
// # Description
//
// Query and DeviceID are always required. ConversationID is required in
// the persisted streaming mode; recommendation mode is stateless and
// ignores it.
type ChatRequest struct {
	Query          string `json:"query" validate:"notblank"`
	DeviceID       string `json:"deviceId" validate:"required,deviceid"`
	ConversationID string `json:"conversationId"`
}

// Validate checks the request for the streaming (persisted) mode.
func (r *ChatRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.ConversationID) == "" {
		return apperr.Validation("conversationId is required")
	}
	return nil
}

// ValidateRecommendation checks the request for recommendation mode.
func (r *ChatRequest) ValidateRecommendation() error {
	if strings.TrimSpace(r.Query) == "" {
		return apperr.Validation("Query is required")
	}
	if r.DeviceID != "" && !IsValidDeviceID(r.DeviceID) {
		return apperr.Validation("Invalid deviceId format")
	}
	return nil
}

// DeleteChatRequest is the body of DELETE /api/chat.
type DeleteChatRequest struct {
	ConversationID string `json:"conversationId" validate:"notblank"`
	DeviceID       string `json:"deviceId" validate:"required,deviceid"`
}

// Validate checks required fields and the deviceId format.
func (r *DeleteChatRequest) Validate() error { return validateStruct(r) }

// ClearHistoryRequest is the body of DELETE /api/history.
type ClearHistoryRequest struct {
	DeviceID string `json:"deviceId" validate:"required,deviceid"`
}

// Validate checks the deviceId format.
func (r *ClearHistoryRequest) Validate() error { return validateStruct(r) }

// =============================================================================
// Helper Functions
// =============================================================================

// fieldMessages maps a "Field.tag" validation failure to the client message.
var fieldMessages = map[string]string{
	"Query.notblank":          "Query is required",
	"DeviceID.required":       "Missing deviceId",
	"DeviceID.deviceid":       "Invalid deviceId format",
	"ConversationID.notblank": "conversationId is required",
}

// validateStruct runs the tag validator and converts the first failure
// into an apperr validation error with a stable client message.
func validateStruct(v any) error {
	err := requestValidate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
			return apperr.Validation(msg)
		}
		return apperr.Validation("Invalid " + fe.Field())
	}
	return apperr.Validation("Invalid request")
}
