// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxAnswerBytes caps how much assistant output one stream may persist.
const MaxAnswerBytes = 512 * 1024

// ErrAnswerTooLarge is returned by Write once the cap is reached.
var ErrAnswerTooLarge = errors.New("assistant answer exceeds persistence limit")

// Accumulator collects streamed deltas for persistence.
//
// # Description
//
// Deltas are appended in arrival order. A running SHA-256 of the raw
// output is kept so the stored answer can be matched against the stream
// in logs. Once MaxAnswerBytes is reached further writes are rejected and
// the text collected so far is kept; the client stream is unaffected.
//
// # Thread Safety
//
// Safe for concurrent use.
type Accumulator struct {
	id        string
	createdAt time.Time

	mu       sync.Mutex
	buf      strings.Builder
	hasher   hash.Hash
	deltas   int
	overflow bool
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		hasher:    sha256.New(),
	}
}

// Write appends one delta.
func (a *Accumulator) Write(delta string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.overflow {
		return ErrAnswerTooLarge
	}
	if a.buf.Len()+len(delta) > MaxAnswerBytes {
		a.overflow = true
		slog.Warn("Answer accumulator full, dropping further deltas",
			"accumulator_id", a.id, "bytes", a.buf.Len())
		return ErrAnswerTooLarge
	}
	a.buf.WriteString(delta)
	a.hasher.Write([]byte(delta))
	a.deltas++
	return nil
}

// String returns the raw text accumulated so far.
func (a *Accumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

// Deltas returns how many deltas were accepted.
func (a *Accumulator) Deltas() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deltas
}

// Hash returns the hex SHA-256 of the accepted output.
func (a *Accumulator) Hash() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return hex.EncodeToString(a.hasher.Sum(nil))
}

// Overflowed reports whether any delta was dropped.
func (a *Accumulator) Overflowed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overflow
}

func (a *Accumulator) ID() string { return a.id }

func (a *Accumulator) Age() time.Duration { return time.Since(a.createdAt) }
