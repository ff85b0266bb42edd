// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest turns uploaded knowledge documents into retriever
// passages.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/troforte/assist/services/assist/retriever"
)

const (
	ChunkSize    = 800
	ChunkOverlap = 100
)

// ErrUnsupportedType is returned for documents that cannot be chunked.
var ErrUnsupportedType = errors.New("unsupported document type")

// Document is one uploaded file.
type Document struct {
	// Source identifies the stored file, usually its object URL or key.
	Source string
	Name   string
	MIME   string
	Data   []byte
}

// Ingestor loads, splits, and indexes documents.
type Ingestor struct {
	indexer  retriever.Indexer
	splitter textsplitter.TextSplitter
}

// New returns an Ingestor writing to indexer.
func New(indexer retriever.Indexer) *Ingestor {
	return &Ingestor{
		indexer: indexer,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(ChunkSize),
			textsplitter.WithChunkOverlap(ChunkOverlap),
		),
	}
}

// Supported reports whether documents of this MIME type can be indexed.
func Supported(mime string) bool {
	mime = baseType(mime)
	return mime == "application/pdf" || strings.HasPrefix(mime, "text/")
}

// Ingest indexes doc and returns how many passages were written.
func (i *Ingestor) Ingest(ctx context.Context, doc Document) (int, error) {
	docs, err := i.load(ctx, doc)
	if err != nil {
		return 0, err
	}

	var passages []retriever.Passage
	for _, d := range docs {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		passages = append(passages, retriever.Passage{
			ID:   PassageID(doc.Source, len(passages)),
			Text: d.PageContent,
			Metadata: map[string]any{
				"source": doc.Source,
				"chunk":  len(passages),
			},
		})
	}
	if len(passages) == 0 {
		slog.Warn("Document produced no text", "source", doc.Source, "name", doc.Name)
		return 0, nil
	}
	if err := i.indexer.Index(ctx, passages); err != nil {
		return 0, err
	}
	slog.Info("Indexed document", "source", doc.Source, "passages", len(passages))
	return len(passages), nil
}

func (i *Ingestor) load(ctx context.Context, doc Document) ([]schema.Document, error) {
	mime := baseType(doc.MIME)
	switch {
	case mime == "application/pdf":
		loader := documentloaders.NewPDF(bytes.NewReader(doc.Data), int64(len(doc.Data)))
		docs, err := loader.LoadAndSplit(ctx, i.splitter)
		if err != nil {
			return nil, fmt.Errorf("load pdf %s: %w", doc.Name, err)
		}
		return docs, nil
	case strings.HasPrefix(mime, "text/"):
		loader := documentloaders.NewText(bytes.NewReader(doc.Data))
		docs, err := loader.LoadAndSplit(ctx, i.splitter)
		if err != nil {
			return nil, fmt.Errorf("load text %s: %w", doc.Name, err)
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, doc.MIME)
	}
}

// PassageID derives a stable id from the source and chunk index, so
// re-uploading the same stored file overwrites its passages.
func PassageID(source string, chunk int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", source, chunk))).String()
}

func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(strings.ToLower(mime))
}
