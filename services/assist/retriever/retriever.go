// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retriever finds knowledge-base passages relevant to a query and
// feeds new passages into the same index.
package retriever

import (
	"context"
	"strings"
)

// DefaultTopK is how many passages a query returns.
const DefaultTopK = 3

// Retriever returns the context text for query: the matched passages
// joined with "\n", most relevant first. An empty index yields "".
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Indexer adds passages to the index a Retriever searches.
type Indexer interface {
	Index(ctx context.Context, passages []Passage) error
}

// Passage is one indexed chunk of a source document.
type Passage struct {
	// ID is stable for identical content so re-uploads overwrite.
	ID       string
	Text     string
	Metadata map[string]any
}

// Join concatenates passage texts the way retrievers return them.
func Join(texts []string) string {
	return strings.Join(texts, "\n")
}

// Static always returns the same context. Used when no vector index is
// configured and in tests.
type Static string

// Retrieve implements Retriever.
func (s Static) Retrieve(context.Context, string) (string, error) { return string(s), nil }
