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
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConversational = `You are Troforte AI Assistant, an agronomy expert helping users understand Troforte fertilizers and soil microbes.

Answer ONLY from the information in the provided context. Do not use outside knowledge and do not guess.
If the context does not contain the answer, say that you don't have that information rather than making something up.`

const defaultRecommendation = `You are a precise agricultural assistant that ONLY recommends Troforte products when they appear in the provided context. Follow these rules strictly:

RESPONSE FORMAT:
{
  "product": "Exact product name from context",
  "reason": "1-sentence benefit from context",
  "application": "Exact application instructions from context"
}

RULES:
1. If context contains matching Troforte product -> return full JSON format
2. If no match -> return {"error": "No Troforte product recommended for this issue"}
3. NEVER invent products or information`

// Personas holds the system prompts for each mode.
type Personas struct {
	Conversational string `yaml:"conversational"`
	Recommendation string `yaml:"recommendation"`
}

// DefaultPersonas returns the compiled-in personas.
func DefaultPersonas() Personas {
	return Personas{
		Conversational: defaultConversational,
		Recommendation: defaultRecommendation,
	}
}

// LoadPersonas reads a YAML persona file. Keys that are missing or blank
// keep their default text.
//
// # Examples
//
//	conversational: |
//	  You are the Troforte field assistant...
func LoadPersonas(path string) (Personas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Personas{}, fmt.Errorf("read persona file: %w", err)
	}
	var fromFile Personas
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return Personas{}, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	return fromFile.withDefaults(), nil
}

func (p Personas) withDefaults() Personas {
	defaults := DefaultPersonas()
	if strings.TrimSpace(p.Conversational) == "" {
		p.Conversational = defaults.Conversational
	}
	if strings.TrimSpace(p.Recommendation) == "" {
		p.Recommendation = defaults.Recommendation
	}
	return p
}
