// Package content loads the blog posts and static pages shipped with the
// binary. Documents are plain text with a YAML front matter block.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoFrontMatter is returned for a document that does not start with ---.
	ErrNoFrontMatter = errors.New("document has no front matter")
	frontMatterDelim = []byte("---")
)

// Document is a parsed post or page.
type Document struct {
	Slug       string
	Title      string    `yaml:"title"`
	Summary    string    `yaml:"summary"`
	Date       time.Time `yaml:"date"`
	Draft      bool      `yaml:"draft"`
	Paragraphs []string  `yaml:"-"`
}

// Store is the immutable set of loaded documents.
type Store struct {
	posts []Document
	post  map[string]Document
	page  map[string]Document
}

// Load reads blog/*.md and pages/*.md from fsys. Drafts are skipped.
// Missing directories yield an empty store.
func Load(fsys fs.FS) (*Store, error) {
	s := &Store{post: map[string]Document{}, page: map[string]Document{}}

	posts, err := loadDir(fsys, "blog")
	if err != nil {
		return nil, err
	}
	for _, d := range posts {
		s.posts = append(s.posts, d)
		s.post[d.Slug] = d
	}
	sort.SliceStable(s.posts, func(i, j int) bool {
		return s.posts[i].Date.After(s.posts[j].Date)
	})

	pages, err := loadDir(fsys, "pages")
	if err != nil {
		return nil, err
	}
	for _, d := range pages {
		s.page[d.Slug] = d
	}
	return s, nil
}

func loadDir(fsys fs.FS, dir string) ([]Document, error) {
	matches, err := fs.Glob(fsys, dir+"/*.md")
	if err != nil {
		return nil, err
	}
	var docs []Document
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		doc, err := Parse(strings.TrimSuffix(path.Base(name), ".md"), data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if doc.Draft {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Parse splits data into front matter and body. Blank lines separate
// paragraphs.
func Parse(slug string, data []byte) (Document, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, frontMatterDelim) {
		return Document{}, ErrNoFrontMatter
	}
	rest := data[len(frontMatterDelim):]
	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
	if end < 0 {
		return Document{}, ErrNoFrontMatter
	}

	var doc Document
	if err := yaml.Unmarshal(rest[:end], &doc); err != nil {
		return Document{}, fmt.Errorf("front matter: %w", err)
	}
	if strings.TrimSpace(doc.Title) == "" {
		return Document{}, errors.New("front matter: title is required")
	}
	doc.Slug = slug

	body := string(rest[end+1+len(frontMatterDelim):])
	for _, block := range strings.Split(body, "\n\n") {
		if para := strings.Join(strings.Fields(block), " "); para != "" {
			doc.Paragraphs = append(doc.Paragraphs, para)
		}
	}
	return doc, nil
}

// Posts returns published posts, newest first.
func (s *Store) Posts() []Document {
	return append([]Document(nil), s.posts...)
}

// Recent returns at most n of the newest posts.
func (s *Store) Recent(n int) []Document {
	if n > len(s.posts) {
		n = len(s.posts)
	}
	return append([]Document(nil), s.posts[:n]...)
}

// Post looks a post up by slug.
func (s *Store) Post(slug string) (Document, bool) {
	d, ok := s.post[slug]
	return d, ok
}

// Page looks a static page up by slug.
func (s *Store) Page(slug string) (Document, bool) {
	d, ok := s.page[slug]
	return d, ok
}

// PageSlugs returns the static page slugs in lexical order.
func (s *Store) PageSlugs() []string {
	slugs := make([]string, 0, len(s.page))
	for slug := range s.page {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
