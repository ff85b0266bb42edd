// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gcs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const publicHost = "https://storage.googleapis.com"

// Client uploads objects to a single Google Cloud Storage bucket.
type Client struct {
	storageClient *storage.Client
	BucketName    string
}

// NewClient creates a storage client from a service account key file.
// An empty saKeyPath uses application default credentials.
func NewClient(ctx context.Context, bucketName, saKeyPath string, opts ...option.ClientOption) (*Client, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("gcs: bucket name is required")
	}
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}
	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &Client{storageClient: storageClient, BucketName: bucketName}, nil
}

// Put implements objectstore.Uploader.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if c.storageClient == nil {
		return "", fmt.Errorf("gcs: client is not initialised")
	}
	obj := c.storageClient.Bucket(c.BucketName).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	if writer.ContentType == "" {
		writer.ContentType = "application/octet-stream"
	}
	writer.CacheControl = "public, max-age=86400"

	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write GCS object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	slog.Debug("Stored object", "bucket", c.BucketName, "key", key, "bytes", len(body))
	return ObjectURL(c.BucketName, key), nil
}

// ObjectURL is the public HTTPS URL of key in bucket.
func ObjectURL(bucket, key string) string {
	return publicHost + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c.storageClient == nil {
		return nil
	}
	return c.storageClient.Close()
}
