// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package splitter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_MarkdownHeadings(t *testing.T) {
	s := New()
	text := "# Title\n\nIntro paragraph.\n\n## Section\n\nBody paragraph."

	chunks, err := s.Split(context.Background(), "doc.md", text)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(chunks), 1)
	assert.Contains(t, strings.Join(chunks, "\n"), "Section")
}

func TestSplit_ParagraphFallback(t *testing.T) {
	s := New()
	text := "First paragraph of prose.\n\nSecond paragraph of prose."

	chunks, err := s.Split(context.Background(), "notes.txt", text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}

func TestSplit_HardCeilingSplitsOverlongParagraph(t *testing.T) {
	s := New()
	s.HardCharCeiling = 50
	s.SoftTokenTarget = 10

	longSentence := strings.Repeat("word ", 40) + "."
	chunks, err := s.Split(context.Background(), "notes.txt", longSentence)
	require.NoError(t, err)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), s.HardCharCeiling+20)
	}
	assert.Greater(t, len(chunks), 1)
}

func TestSplit_MergesShortTrailingChunk(t *testing.T) {
	s := New()
	s.MinChunkChars = 100

	text := strings.Repeat("alpha beta gamma delta. ", 20) + "\n\nshort."
	chunks, err := s.Split(context.Background(), "notes.txt", text)
	require.NoError(t, err)

	last := chunks[len(chunks)-1]
	assert.Contains(t, last, "short.")
}
