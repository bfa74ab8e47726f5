package content

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const post = `---
title: Why short links
summary: A short intro
date: 2024-03-01
---
First paragraph
continues here.

Second paragraph.
`

func TestParse(t *testing.T) {
	doc, err := Parse("why-short-links", []byte(post))
	require.NoError(t, err)

	assert.Equal(t, "why-short-links", doc.Slug)
	assert.Equal(t, "Why short links", doc.Title)
	assert.Equal(t, "A short intro", doc.Summary)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), doc.Date.UTC())
	assert.Equal(t, []string{"First paragraph continues here.", "Second paragraph."}, doc.Paragraphs)
}

func TestParse_Errors(t *testing.T) {
	for name, data := range map[string]string{
		"no front matter": "just text",
		"unterminated":    "---\ntitle: x\n",
		"bad yaml":        "---\ntitle: [\n---\nbody",
		"missing title":   "---\nsummary: x\n---\nbody",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("x", []byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"blog/older.md":  {Data: []byte("---\ntitle: Older\ndate: 2023-01-01\n---\nbody")},
		"blog/newer.md":  {Data: []byte("---\ntitle: Newer\ndate: 2024-01-01\n---\nbody")},
		"blog/draft.md":  {Data: []byte("---\ntitle: Draft\ndraft: true\n---\nbody")},
		"pages/about.md": {Data: []byte("---\ntitle: About\n---\nWe shorten links.")},
	}

	s, err := Load(fsys)
	require.NoError(t, err)

	posts := s.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "newer", posts[0].Slug)
	assert.Equal(t, "older", posts[1].Slug)
	assert.Len(t, s.Recent(1), 1)
	assert.Len(t, s.Recent(10), 2)

	_, ok := s.Post("draft")
	assert.False(t, ok)

	about, ok := s.Page("about")
	require.True(t, ok)
	assert.Equal(t, "About", about.Title)
	assert.Equal(t, []string{"about"}, s.PageSlugs())
}

func TestLoad_EmptyFS(t *testing.T) {
	s, err := Load(fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, s.Posts())
}

func TestLoad_BadDocument(t *testing.T) {
	_, err := Load(fstest.MapFS{"blog/broken.md": {Data: []byte("no front matter")}})
	assert.ErrorIs(t, err, ErrNoFrontMatter)
}
