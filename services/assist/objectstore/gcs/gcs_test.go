// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewClient_NonExistentSAKeyPath(t *testing.T) {
	_, err := NewClient(context.Background(), "test-bucket", "/nonexistent/path/to/key.json")
	if err == nil {
		t.Fatal("NewClient with non-existent SA key should return error")
	}
	if !strings.Contains(err.Error(), "service account key not found") {
		t.Errorf("Error should mention SA key not found, got: %v", err)
	}
}

func TestNewClient_EmptyBucket(t *testing.T) {
	_, err := NewClient(context.Background(), "", "")
	if err == nil {
		t.Fatal("NewClient without a bucket should return error")
	}
}

func TestNewClient_InvalidCredentialsFile(t *testing.T) {
	invalidKeyPath := filepath.Join(t.TempDir(), "invalid_key.json")
	if err := os.WriteFile(invalidKeyPath, []byte("not valid json"), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	_, err := NewClient(context.Background(), "test-bucket", invalidKeyPath)
	if err == nil {
		t.Fatal("NewClient with invalid credentials file should return error")
	}
	if !strings.Contains(err.Error(), "failed to create GCS storage client") {
		t.Errorf("Error should mention failed to create client, got: %v", err)
	}
}

func TestClient_PutWithoutStorageClient(t *testing.T) {
	client := &Client{BucketName: "test-bucket"}

	_, err := client.Put(context.Background(), "uploads/a.pdf", []byte("%PDF"), "application/pdf")
	if err == nil {
		t.Fatal("Put without a storage client should return error")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on an empty client should be a no-op, got: %v", err)
	}
}

func TestObjectURL(t *testing.T) {
	got := ObjectURL("troforte", "/plant-images/a.png")
	want := "https://storage.googleapis.com/troforte/plant-images/a.png"
	if got != want {
		t.Errorf("ObjectURL = %q, want %q", got, want)
	}
}
