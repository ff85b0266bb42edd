// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompt

import (
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Mode selects the prompt variant.
type Mode int

const (
	// Conversational answers a free-form question in prose.
	Conversational Mode = iota
	// Recommendation asks for a single JSON product recommendation.
	Recommendation
)

func (m Mode) String() string {
	if m == Recommendation {
		return "recommendation"
	}
	return "conversational"
}

// ParseMode maps the ?mode= query value onto a Mode. Anything other than
// "recommendation" is conversational.
func ParseMode(s string) Mode {
	if s == "recommendation" {
		return Recommendation
	}
	return Conversational
}

// Assemble builds the two-message prompt for mode: the persona as the
// system message, then the retrieved context and the query as the user
// message. Prior turns are never included.
//
// The output depends only on its arguments.
func Assemble(p Personas, mode Mode, query, context string) []openai.ChatCompletionMessage {
	var system, user string
	switch mode {
	case Recommendation:
		system = p.Recommendation
		user = fmt.Sprintf("CONTEXT:\n%s\n\nISSUE: %s\n\nRespond with either the JSON recommendation or error JSON.", context, query)
	default:
		system = p.Conversational
		user = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, query)
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}
