// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troforte/assist/services/assist/news"
)

// HandleAgricultureNews serves GET /api/news/agriculture.
func HandleAgricultureNews(client *news.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		articles, err := client.Agriculture(c.Request.Context())
		if err != nil {
			slog.Error("News fetch failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Failed to fetch news articles",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"count":   len(articles),
			"data":    articles,
		})
	}
}
