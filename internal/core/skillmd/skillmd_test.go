package skillmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytes(t *testing.T) {
	doc, err := ParseBytes([]byte(`---
name: frontend-design
description: Build polished UIs
license: MIT
metadata:
  author: acme
  internal: false
---

# Frontend Design

Do the thing.
`))
	require.NoError(t, err)
	assert.Equal(t, "frontend-design", doc.Name)
	assert.Equal(t, "Build polished UIs", doc.Description)
	assert.Equal(t, "MIT", doc.License)
	assert.False(t, doc.Internal)
	assert.Equal(t, "# Frontend Design\n\nDo the thing.\n", doc.Body)
	assert.Contains(t, doc.Frontmatter, "metadata")
}

func TestParseBytes_Internal(t *testing.T) {
	doc, err := ParseBytes([]byte("---\nname: hidden\ndescription: x\nmetadata:\n  internal: true\n---\n"))
	require.NoError(t, err)
	assert.True(t, doc.Internal)
}

func TestParseBytes_CRLF(t *testing.T) {
	doc, err := ParseBytes([]byte("---\r\nname: win\r\ndescription: crlf file\r\n---\r\nbody\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "win", doc.Name)
	assert.Equal(t, "crlf file", doc.Description)
	assert.Equal(t, "body\n", doc.Body)
}

func TestParseBytes_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"empty", "", ErrNoFrontmatter},
		{"no frontmatter", "# Title\n", ErrNoFrontmatter},
		{"unterminated", "---\nname: x\ndescription: y\n", ErrNoFrontmatter},
		{"missing name", "---\ndescription: y\n---\n", ErrMissingField},
		{"missing description", "---\nname: x\n---\n", ErrMissingField},
		{"blank name", "---\nname: \"  \"\ndescription: y\n---\n", ErrMissingField},
		{"non-string name", "---\nname: [a, b]\ndescription: y\n---\n", ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseBytes_InvalidYAML(t *testing.T) {
	_, err := ParseBytes([]byte("---\nname: [unclosed\n---\n"))
	require.Error(t, err)
}

func TestParse_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("---\nname: a\ndescription: b\n---\n"), 0o644))

	doc, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Name)

	_, err = Parse(filepath.Join(t.TempDir(), FileName))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestTemplate_RoundTrips(t *testing.T) {
	out := Template("my-new-skill", "")

	doc, err := ParseBytes(out)
	require.NoError(t, err)
	assert.Equal(t, "my-new-skill", doc.Name)
	assert.NotEmpty(t, doc.Description)
	assert.Contains(t, doc.Body, "# My New Skill")
}

func TestTemplate_QuotesSpecialCharacters(t *testing.T) {
	out := Template("colon-skill", "Use when: things happen")

	doc, err := ParseBytes(out)
	require.NoError(t, err)
	assert.Equal(t, "Use when: things happen", doc.Description)
}
