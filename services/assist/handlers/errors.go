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

	"github.com/gin-gonic/gin"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/datatypes"
)

// writeError renders err as {"error": message} with its mapped status.
// Internal causes are logged, never sent.
func writeError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= 500 {
		slog.Error("Request failed", "path", c.FullPath(), "status", status, "error", err)
	} else {
		slog.Warn("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, datatypes.ErrorResponse{Error: apperr.ClientMessage(err)})
}

// bindJSON decodes the request body into v. Malformed bodies are a
// validation error.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}
