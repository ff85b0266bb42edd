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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no markers", "  Apply 200kg/ha.  ", "Apply 200kg/ha."},
		{"paired block", "<think>plan</think>Apply 200kg/ha.", "Apply 200kg/ha."},
		{"two blocks", "<think>a</think>One <think>b</think>two", "One two"},
		{"multiline block", "<think>line1\nline2</think>\nAnswer", "Answer"},
		{"open only", "Answer first<think>never closed", "Answer first"},
		{"open only at start", "<think>never closed", ""},
		{"close only", "tail of reasoning</think> Answer", "Answer"},
		{"close only twice", "a</think>b</think> c", "c"},
		{"pair then dangling open", "<think>x</think>Keep<think>drop", "Keep"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripReasoning(tt.in))
		})
	}
}

func TestStripReasoning_Idempotent(t *testing.T) {
	inputs := []string{
		"<think>a</think>b",
		"x</think>y<think>z",
		"<think><think>nested</think></think>after",
		"</think></think><think>",
		"plain",
		"<think>a</think>b</think>c",
	}
	for _, in := range inputs {
		once := StripReasoning(in)
		assert.Equal(t, once, StripReasoning(once), "input %q", in)
		assert.NotContains(t, once, reasoningOpen)
		assert.NotContains(t, once, reasoningClose)
	}
}
