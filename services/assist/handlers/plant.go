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
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/conversation"
	"github.com/troforte/assist/services/assist/datatypes"
	"github.com/troforte/assist/services/assist/objectstore"
	"github.com/troforte/assist/services/assist/plantid"
)

// PlantHandler serves the plant diagnosis routes.
type PlantHandler struct {
	client   *plantid.Client
	uploader objectstore.Uploader
	analyses *conversation.Analyses
	now      func() time.Time
}

// NewPlantHandler wires the Plant.id client, image storage, and analysis
// records.
func NewPlantHandler(client *plantid.Client, uploader objectstore.Uploader, analyses *conversation.Analyses) *PlantHandler {
	if uploader == nil {
		uploader = objectstore.Discard{}
	}
	return &PlantHandler{client: client, uploader: uploader, analyses: analyses, now: time.Now}
}

// plantFailure is the body shape of every plant route error.
type plantFailure struct {
	Success      bool   `json:"success"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	APIErrorCode int    `json:"api_error_code,omitempty"`
}

func failPlant(c *gin.Context, status int, errText, message string) {
	c.AbortWithStatusJSON(status, plantFailure{Error: errText, Message: message})
}

// Analyze serves POST /api/plant-health/analyze.
//
// # Description
//
// The image is validated, stored under plant-images/, and sent to the
// Plant.id health assessment. The first result for an analysisId is
// recorded for the device; repeats return a fresh assessment without
// overwriting it.
func (h *PlantHandler) Analyze(c *gin.Context) {
	if !h.client.Configured() {
		failPlant(c, http.StatusInternalServerError, "API key not configured", "Plant.id API key is missing or invalid")
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		if form, ferr := c.MultipartForm(); ferr == nil && len(form.File["images"]) > 0 {
			file, err = form.File["images"][0], nil
		}
	}
	if err != nil {
		failPlant(c, http.StatusBadRequest, "No images provided", "Please upload at least one image")
		return
	}
	img, ok := h.readImage(c, file)
	if !ok {
		return
	}

	analysisID := c.PostForm("analysisId")
	deviceID := c.PostForm("deviceId")
	if analysisID == "" || deviceID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "Missing analysis or deviceId"})
		return
	}
	if !datatypes.IsValidDeviceID(analysisID) || !datatypes.IsValidDeviceID(deviceID) {
		c.AbortWithStatusJSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "Invalid ID format"})
		return
	}
	loc := parseLocation(c)

	imageURL, err := h.uploader.Put(c.Request.Context(), objectstore.Key(objectstore.PlantImagePrefix, file.Filename), img.Data, img.MIME)
	if err != nil {
		slog.Error("Failed to store plant image", "analysis_id", analysisID, "error", err)
		failPlant(c, http.StatusInternalServerError, "Internal server error", "Failed to store the uploaded image")
		return
	}

	result, err := h.client.HealthAssessment(c.Request.Context(), []plantid.Image{img}, loc)
	if err != nil {
		h.writeProviderError(c, err, "analysis")
		return
	}

	now := h.now()
	rec := datatypes.NewAnalysisRecord(analysisID, deviceID, imageURL, result, now)
	if _, err := h.analyses.SaveIfAbsent(c.Request.Context(), rec); err != nil {
		slog.Error("Failed to record plant analysis", "analysis_id", analysisID, "error", err)
		failPlant(c, http.StatusInternalServerError, "Internal server error", "Failed to save the plant analysis")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Plant health analysis completed",
		"data":    plantid.WithMetadata(result, plantid.NewMetadata(1, loc != nil, now)),
	})
}

// Identify serves POST /api/plant-health/identify with 1 to 5 images.
func (h *PlantHandler) Identify(c *gin.Context) {
	if !h.client.Configured() {
		failPlant(c, http.StatusInternalServerError, "API key not configured", "Plant.id API key is missing or invalid")
		return
	}

	form, err := c.MultipartForm()
	if err != nil || len(form.File["images"]) == 0 {
		failPlant(c, http.StatusBadRequest, "No images provided", "Please upload at least one image")
		return
	}
	files := form.File["images"]
	if len(files) > plantid.MaxIdentifyCount {
		failPlant(c, http.StatusBadRequest, "Too many files", "Maximum 5 images allowed")
		return
	}

	images := make([]plantid.Image, 0, len(files))
	for _, f := range files {
		img, ok := h.readImage(c, f)
		if !ok {
			return
		}
		images = append(images, img)
	}
	loc := parseLocation(c)

	result, err := h.client.Identify(c.Request.Context(), images, loc, c.PostForm("language"))
	if err != nil {
		h.writeProviderError(c, err, "identification")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Plant identification completed",
		"data":    plantid.WithMetadata(result, plantid.NewMetadata(len(images), loc != nil, h.now())),
	})
}

// AnalysisHistory serves GET /api/analysis-history?deviceId.
func (h *PlantHandler) AnalysisHistory(c *gin.Context) {
	history, err := h.analyses.List(c.Request.Context(), c.Query("deviceId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// AnalysisByID serves GET /api/analysisById?analysisId&deviceId.
func (h *PlantHandler) AnalysisByID(c *gin.Context) {
	rec, err := h.analyses.Get(c.Request.Context(), c.Query("analysisId"), c.Query("deviceId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// readImage loads and sniffs one upload, writing the 400 response itself
// when the file is rejected.
func (h *PlantHandler) readImage(c *gin.Context, fh *multipart.FileHeader) (plantid.Image, bool) {
	data, err := readUpload(fh, plantid.MaxImageBytes)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			failPlant(c, http.StatusBadRequest, "File too large", "Image size should be less than 10MB")
		} else {
			failPlant(c, http.StatusBadRequest, "Image processing failed", err.Error())
		}
		return plantid.Image{}, false
	}
	img, err := plantid.Sniff(data)
	switch {
	case errors.Is(err, plantid.ErrImageTooLarge):
		failPlant(c, http.StatusBadRequest, "File too large", "Image size should be less than 10MB")
		return plantid.Image{}, false
	case err != nil:
		failPlant(c, http.StatusBadRequest, "Invalid file type", "Only image files are allowed")
		return plantid.Image{}, false
	}
	return img, true
}

func (h *PlantHandler) writeProviderError(c *gin.Context, err error, what string) {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindUpstream {
		slog.Error("Plant request failed", "operation", what, "error", err)
		failPlant(c, http.StatusInternalServerError, "Internal server error",
			"An unexpected error occurred during plant "+what)
		return
	}
	slog.Warn("Plant.id call failed", "operation", what, "failure", appErr.Failure.String(), "error", err)
	switch appErr.Failure {
	case apperr.UpstreamStatus:
		body := plantFailure{
			Error:   "Plant.id API error",
			Message: appErr.Message,
			Details: appErr.Details,
		}
		if what == "analysis" {
			body.APIErrorCode = appErr.StatusCode
		}
		c.AbortWithStatusJSON(apperr.Status(err), body)
	case apperr.UpstreamTimeout:
		msg := "The plant identification request timed out. Please try again."
		if what == "analysis" {
			msg = "The plant analysis request timed out. Please try again with smaller images or fewer images."
		}
		failPlant(c, http.StatusRequestTimeout, "Request timeout", msg)
	case apperr.UpstreamConnectivity:
		failPlant(c, http.StatusServiceUnavailable, "Network error",
			"Unable to connect to Plant.id service. Please check your internet connection.")
	default:
		failPlant(c, apperr.Status(err), "Internal server error",
			"An unexpected error occurred during plant "+what)
	}
}

// parseLocation returns the coordinates when both form fields parse.
func parseLocation(c *gin.Context) *plantid.Location {
	lat, err1 := strconv.ParseFloat(c.PostForm("latitude"), 64)
	lng, err2 := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &plantid.Location{Latitude: lat, Longitude: lng}
}

var errUploadTooLarge = errors.New("upload too large")

// readUpload reads at most limit bytes of fh.
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh.Size > limit {
		return nil, errUploadTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errUploadTooLarge
	}
	return data, nil
}
