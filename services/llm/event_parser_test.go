// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataOf(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Kind == EventDone {
			out = append(out, "<done>")
			continue
		}
		out = append(out, string(ev.Data))
	}
	return out
}

func TestEventParser_WholeLines(t *testing.T) {
	p := NewEventParser()
	events, err := p.Feed([]byte("data: {\"a\":1}\n\ndata: {\"a\":2}\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, dataOf(events))
	assert.Equal(t, HaveEvent, p.State())
}

func TestEventParser_SplitAcrossChunks(t *testing.T) {
	p := NewEventParser()

	events, err := p.Feed([]byte("data: {\"delta\":\"Tro"))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, AwaitingLine, p.State())
	assert.Equal(t, []byte("data: {\"delta\":\"Tro"), p.Buffered())

	events, err = p.Feed([]byte("forte\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"delta":"Troforte"}`}, dataOf(events))
	assert.Empty(t, p.Buffered())
}

func TestEventParser_ByteAtATime(t *testing.T) {
	input := []byte("data: one\r\n\r\n: keepalive\r\nevent: message\r\ndata:two\r\ndata: [DONE]\r\n")
	p := NewEventParser()

	var all []Event
	for i := range input {
		events, err := p.Feed(input[i : i+1])
		require.NoError(t, err)
		all = append(all, events...)
	}
	assert.Equal(t, []string{"one", "two", "<done>"}, dataOf(all))
	assert.Equal(t, Done, p.State())
}

func TestEventParser_DoneIgnoresRest(t *testing.T) {
	p := NewEventParser()
	events, err := p.Feed([]byte("data: a\ndata: [DONE]\ndata: after\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "<done>"}, dataOf(events))

	events, err = p.Feed([]byte("data: more\n"))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, Done, p.State())
	assert.Empty(t, p.Finish())
}

func TestEventParser_NonDataLinesOnly(t *testing.T) {
	p := NewEventParser()
	events, err := p.Feed([]byte(": ping\n\nid: 4\nretry: 100\n"))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, AwaitingLine, p.State())
}

func TestEventParser_FinishFlushesTail(t *testing.T) {
	p := NewEventParser()
	_, err := p.Feed([]byte("data: tail-without-newline"))
	require.NoError(t, err)

	assert.Equal(t, []string{"tail-without-newline"}, dataOf(p.Finish()))
	assert.Empty(t, p.Finish())
}

func TestEventParser_FinishDoneMarker(t *testing.T) {
	p := NewEventParser()
	_, err := p.Feed([]byte("data: [DONE]"))
	require.NoError(t, err)
	assert.Equal(t, []string{"<done>"}, dataOf(p.Finish()))
	assert.Equal(t, Done, p.State())
}

func TestEventParser_LineTooLong(t *testing.T) {
	p := NewEventParser()
	_, err := p.Feed(bytes.Repeat([]byte("x"), MaxLineBytes+1))
	assert.True(t, errors.Is(err, ErrLineTooLong))
}

func TestEventParser_MalformedPayloadStillEmitted(t *testing.T) {
	// JSON validity is the consumer's concern; the parser only frames lines.
	p := NewEventParser()
	events, err := p.Feed([]byte("data: {not json\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, dataOf(events))
}

func TestParserState_String(t *testing.T) {
	assert.Equal(t, "AWAITING_LINE", AwaitingLine.String())
	assert.Equal(t, "HAVE_EVENT", HaveEvent.String())
	assert.Equal(t, "DONE", Done.String())
}
