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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_WriteAndHash(t *testing.T) {
	a := NewAccumulator()
	require.NoError(t, a.Write("Apply "))
	require.NoError(t, a.Write("200kg/ha."))

	assert.Equal(t, "Apply 200kg/ha.", a.String())
	assert.Equal(t, 2, a.Deltas())
	assert.False(t, a.Overflowed())
	assert.NotEmpty(t, a.ID())
	assert.GreaterOrEqual(t, a.Age().Nanoseconds(), int64(0))

	b := NewAccumulator()
	require.NoError(t, b.Write("Apply 200kg/ha."))
	assert.Equal(t, a.Hash(), b.Hash(), "hash covers content, not delta boundaries")
}

func TestAccumulator_Overflow(t *testing.T) {
	a := NewAccumulator()
	require.NoError(t, a.Write(strings.Repeat("x", MaxAnswerBytes-1)))

	assert.ErrorIs(t, a.Write("yy"), ErrAnswerTooLarge)
	assert.ErrorIs(t, a.Write("z"), ErrAnswerTooLarge)
	assert.True(t, a.Overflowed())
	assert.Len(t, a.String(), MaxAnswerBytes-1)
	assert.Equal(t, 1, a.Deltas())
}
