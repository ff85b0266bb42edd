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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemble_Conversational(t *testing.T) {
	p := Personas{Conversational: "SYS-CHAT", Recommendation: "SYS-REC"}

	got := Assemble(p, Conversational, "How much Troforte per hectare?", "Apply 200kg/ha.\nWater in.")

	want := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "SYS-CHAT"},
		{Role: openai.ChatMessageRoleUser, Content: "Context:\nApply 200kg/ha.\nWater in.\n\nQuestion: How much Troforte per hectare?"},
	}
	assert.Equal(t, want, got)
}

func TestAssemble_Recommendation(t *testing.T) {
	p := Personas{Conversational: "SYS-CHAT", Recommendation: "SYS-REC"}

	got := Assemble(p, Recommendation, "yellowing leaves", "Troforte M fixes nitrogen.")

	want := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "SYS-REC"},
		{Role: openai.ChatMessageRoleUser, Content: "CONTEXT:\nTroforte M fixes nitrogen.\n\nISSUE: yellowing leaves\n\nRespond with either the JSON recommendation or error JSON."},
	}
	assert.Equal(t, want, got)
}

func TestAssemble_Deterministic(t *testing.T) {
	p := DefaultPersonas()
	a := Assemble(p, Conversational, "q", "c")
	b := Assemble(p, Conversational, "q", "c")
	assert.Equal(t, a, b)
}

func TestAssemble_EmptyContextKeptVerbatim(t *testing.T) {
	got := Assemble(DefaultPersonas(), Conversational, "q", "")
	assert.Equal(t, "Context:\n\n\nQuestion: q", got[1].Content)
}

func TestDefaultPersonas(t *testing.T) {
	p := DefaultPersonas()
	assert.Contains(t, p.Conversational, "Troforte AI Assistant")
	assert.Contains(t, p.Conversational, "don't have that information")
	assert.Contains(t, p.Recommendation, `"product"`)
	assert.Contains(t, p.Recommendation, "No Troforte product recommended for this issue")
	assert.Contains(t, p.Recommendation, "NEVER invent products")
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, Recommendation, ParseMode("recommendation"))
	assert.Equal(t, Conversational, ParseMode(""))
	assert.Equal(t, Conversational, ParseMode("RECOMMENDATION"))
	assert.Equal(t, "recommendation", Recommendation.String())
}

func writePersonaFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadPersonas_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	writePersonaFile(t, path, "conversational: |\n  Custom field assistant.\n")

	p, err := LoadPersonas(path)
	require.NoError(t, err)
	assert.Equal(t, "Custom field assistant.\n", p.Conversational)
	assert.Equal(t, DefaultPersonas().Recommendation, p.Recommendation)
}

func TestLoadPersonas_Errors(t *testing.T) {
	_, err := LoadPersonas(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writePersonaFile(t, path, "conversational: [unclosed")
	_, err = LoadPersonas(path)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	var src Source = Static(DefaultPersonas())
	assert.Equal(t, DefaultPersonas(), src.Current())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	writePersonaFile(t, path, "conversational: first\n")

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "first", w.Current().Conversational)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writePersonaFile(t, path, "conversational: second\n")
	require.Eventually(t, func() bool {
		return w.Current().Conversational == "second"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_KeepsSnapshotOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	writePersonaFile(t, path, "recommendation: strict\n")

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writePersonaFile(t, path, "recommendation: [broken")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "strict", w.Current().Recommendation)
}

func TestNewWatcher_MissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "none.yaml"), 0)
	assert.Error(t, err)
}
