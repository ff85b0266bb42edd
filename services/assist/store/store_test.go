// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceRange(t *testing.T) {
	list := []string{"a", "b", "c", "d"}

	tests := []struct {
		name        string
		start, stop int64
		want        []string
	}{
		{"all", 0, -1, []string{"a", "b", "c", "d"}},
		{"head", 0, 1, []string{"a", "b"}},
		{"stop past end", 2, 10, []string{"c", "d"}},
		{"start past end", 4, 10, []string{}},
		{"negative start", -2, -1, []string{"c", "d"}},
		{"very negative start", -10, 0, []string{"a"}},
		{"inverted", 3, 1, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SliceRange(list, tt.start, tt.stop))
		})
	}

	assert.Equal(t, []string{}, SliceRange(nil, 0, -1))
}

func TestDecodeError_Unwrap(t *testing.T) {
	cause := errors.New("invalid character")
	err := &DecodeError{Key: "chat:1", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "chat:1")
}
