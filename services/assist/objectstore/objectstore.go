// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package objectstore stores uploaded files (plant images, knowledge
// documents) and returns their public URL.
package objectstore

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
)

const (
	PlantImagePrefix = "plant-images"
	UploadPrefix     = "uploads"
)

// Uploader puts one object and returns the URL it can be fetched from.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Key builds "<prefix>/<uuid>.<ext>" where ext is taken from the original
// filename. Names without an extension get none.
func Key(prefix, originalName string) string {
	name := uuid.NewString()
	if ext := strings.TrimPrefix(path.Ext(originalName), "."); ext != "" {
		name += "." + strings.ToLower(ext)
	}
	return prefix + "/" + name
}

// Discard is an Uploader that keeps nothing. Put returns an empty URL.
type Discard struct{}

func (Discard) Put(context.Context, string, []byte, string) (string, error) { return "", nil }
