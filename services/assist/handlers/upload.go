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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/troforte/assist/services/assist/ingest"
	"github.com/troforte/assist/services/assist/objectstore"
)

// MaxUploadBytes caps knowledge document uploads.
const MaxUploadBytes = 25 * 1024 * 1024

// UploadedFile describes a stored knowledge document.
type UploadedFile struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
	MIMEType     string `json:"mimetype"`
	Size         int    `json:"size"`
	Path         string `json:"path"`
	Chunks       int    `json:"chunks"`
}

// HandleUpload serves POST /api/upload.
//
// # Description
//
// The file is stored under uploads/ and, when it is a PDF or text file,
// chunked into the retriever index so later chat turns can cite it.
// Other types are stored without indexing.
func HandleUpload(uploader objectstore.Uploader, ingestor *ingest.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
			return
		}
		data, err := readUpload(fh, MaxUploadBytes)
		if err != nil {
			if errors.Is(err, errUploadTooLarge) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
				return
			}
			writeError(c, err)
			return
		}
		mime := mimetype.Detect(data).String()

		key := objectstore.Key(objectstore.UploadPrefix, fh.Filename)
		location, err := uploader.Put(c.Request.Context(), key, data, mime)
		if err != nil {
			slog.Error("Failed to store upload", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
			return
		}
		if location == "" {
			location = key
		}

		chunks := 0
		if ingestor != nil && ingest.Supported(mime) {
			chunks, err = ingestor.Ingest(c.Request.Context(), ingest.Document{
				Source: location,
				Name:   fh.Filename,
				MIME:   mime,
				Data:   data,
			})
			if err != nil {
				slog.Error("Failed to index upload", "key", key, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to index file"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "File uploaded successfully",
			"file": UploadedFile{
				Filename:     key[len(objectstore.UploadPrefix)+1:],
				OriginalName: fh.Filename,
				MIMEType:     mime,
				Size:         len(data),
				Path:         location,
				Chunks:       chunks,
			},
		})
	}
}
