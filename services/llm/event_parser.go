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
	"fmt"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// dataPrefix marks a server-sent-event data line.
	dataPrefix = "data:"

	// doneMarker is the payload that ends an OpenAI-compatible stream.
	doneMarker = "[DONE]"

	// MaxLineBytes bounds a single buffered line.
	MaxLineBytes = 10 * 1024 * 1024
)

// ErrLineTooLong is returned when the carry-over buffer exceeds MaxLineBytes
// without a line terminator.
var ErrLineTooLong = errors.New("stream line exceeds maximum length")

// =============================================================================
// Types
// =============================================================================

// ParserState is the position of an EventParser in its line cycle.
type ParserState int

const (
	// AwaitingLine means the carry-over holds no complete line.
	AwaitingLine ParserState = iota
	// HaveEvent means a data event was just emitted.
	HaveEvent
	// Done means the done marker was seen. Further input is ignored.
	Done
)

func (s ParserState) String() string {
	switch s {
	case AwaitingLine:
		return "AWAITING_LINE"
	case HaveEvent:
		return "HAVE_EVENT"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// EventKind distinguishes data payloads from the terminal marker.
type EventKind int

const (
	EventData EventKind = iota
	EventDone
)

// Event is one parsed stream record.
type Event struct {
	Kind EventKind
	// Data is the payload after "data:" with one optional leading space
	// removed. Empty for EventDone.
	Data []byte
}

// =============================================================================
// Parser
// =============================================================================

// EventParser incrementally splits a server-sent-event byte stream into
// data events.
//
// # Description
//
// Bytes arrive in arbitrary chunks: a chunk may hold several lines, part of
// a line, or split a CRLF pair. The parser keeps the unterminated tail in a
// carry-over buffer until its newline arrives. Only "data:" lines produce
// events; comments (": keepalive"), "event:", "id:", "retry:" and blank
// lines are skipped. A data line whose payload is exactly "[DONE]" emits
// EventDone and moves the parser to Done.
//
// # Examples
//
//	p := NewEventParser()
//	events, _ := p.Feed([]byte("data: {\"a\":1}\n\ndata: [DO"))
//	// events: [{EventData {"a":1}}], p.State() == HaveEvent
//	events, _ = p.Feed([]byte("NE]\n"))
//	// events: [{EventDone}], p.State() == Done
//
// # Thread Safety
//
// Not safe for concurrent use. One parser serves one stream.
type EventParser struct {
	state ParserState
	carry []byte
}

// NewEventParser returns a parser in AwaitingLine.
func NewEventParser() *EventParser {
	return &EventParser{state: AwaitingLine}
}

// State reports the parser state after the last call.
func (p *EventParser) State() ParserState { return p.state }

// Buffered returns a copy of the carry-over bytes not yet terminated.
func (p *EventParser) Buffered() []byte {
	return append([]byte(nil), p.carry...)
}

// Feed consumes chunk and returns every event completed by it, in order.
//
// # Outputs
//
//   - []Event: completed events; empty if chunk finished no data line
//   - error: ErrLineTooLong if the carry-over grows past MaxLineBytes
func (p *EventParser) Feed(chunk []byte) ([]Event, error) {
	if p.state == Done {
		return nil, nil
	}
	p.carry = append(p.carry, chunk...)

	var events []Event
	for p.state != Done {
		idx := bytes.IndexByte(p.carry, '\n')
		if idx < 0 {
			break
		}
		line := p.carry[:idx]
		p.carry = p.carry[idx+1:]
		if ev, ok := p.parseLine(line); ok {
			events = append(events, ev)
		}
	}

	if p.state == Done {
		p.carry = nil
	} else if len(p.carry) > MaxLineBytes {
		return events, fmt.Errorf("%w: %d bytes buffered", ErrLineTooLong, len(p.carry))
	}
	if len(events) == 0 && p.state != Done {
		p.state = AwaitingLine
	}
	// Compact so the carry does not pin the consumed prefix.
	if len(p.carry) > 0 {
		p.carry = append([]byte(nil), p.carry...)
	}
	return events, nil
}

// Finish treats any unterminated carry-over as a final line. Call it once
// the upstream body reaches EOF.
func (p *EventParser) Finish() []Event {
	if p.state == Done || len(p.carry) == 0 {
		p.carry = nil
		return nil
	}
	line := p.carry
	p.carry = nil
	if ev, ok := p.parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// parseLine interprets a single line without its trailing newline.
func (p *EventParser) parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Event{}, false
	}
	payload := line[len(dataPrefix):]
	payload = bytes.TrimPrefix(payload, []byte{' '})

	if string(bytes.TrimSpace(payload)) == doneMarker {
		p.state = Done
		return Event{Kind: EventDone}, true
	}
	p.state = HaveEvent
	return Event{Kind: EventData, Data: append([]byte(nil), payload...)}, true
}
