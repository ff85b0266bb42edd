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
	"regexp"
	"strings"
)

const (
	reasoningOpen  = "<think>"
	reasoningClose = "</think>"
)

var reasoningSpan = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes model reasoning blocks from a completed answer.
//
// # Description
//
// Reasoning models wrap their chain of thought in <think>...</think>.
// Streams that were cut short can leave either marker dangling. The rules:
//
//   - an open marker with no close anywhere keeps only the text before the
//     first open
//   - a close marker with no open anywhere keeps only the text after the
//     last close
//   - otherwise every paired span is removed (shortest match), then text
//     from the last remaining open marker onward is dropped
//
// The rules are reapplied until the text stops changing and the result is
// whitespace-trimmed, so StripReasoning(StripReasoning(s)) == StripReasoning(s).
//
// # Examples
//
//	StripReasoning("<think>plan</think>Use 200kg/ha.")  // "Use 200kg/ha."
//	StripReasoning("Use 200kg/ha.<think>hmm")           // "Use 200kg/ha."
//	StripReasoning("still thinking</think> Answer")      // "Answer"
func StripReasoning(s string) string {
	for {
		next := stripReasoningOnce(s)
		if next == s {
			return next
		}
		s = next
	}
}

func stripReasoningOnce(s string) string {
	hasOpen := strings.Contains(s, reasoningOpen)
	hasClose := strings.Contains(s, reasoningClose)

	switch {
	case hasOpen && !hasClose:
		s = s[:strings.Index(s, reasoningOpen)]
	case hasClose && !hasOpen:
		s = s[strings.LastIndex(s, reasoningClose)+len(reasoningClose):]
	case hasOpen && hasClose:
		s = reasoningSpan.ReplaceAllString(s, "")
		if i := strings.LastIndex(s, reasoningOpen); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
