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

// State is a step of the chat relay.
type State int

const (
	ResolvingConversation State = iota
	BuildingPrompt
	Streaming
	Finalizing
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case ResolvingConversation:
		return "RESOLVING_CONVERSATION"
	case BuildingPrompt:
		return "BUILDING_PROMPT"
	case Streaming:
		return "STREAMING"
	case Finalizing:
		return "FINALIZING"
	case Complete:
		return "COMPLETE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}
