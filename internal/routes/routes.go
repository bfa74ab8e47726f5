// Package routes classifies request paths as public or private.
package routes

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Visibility says whether a path needs an authenticated session.
type Visibility int

const (
	// Private paths require a valid session. It is the zero value so that
	// anything not matched is private.
	Private Visibility = iota
	// Public paths are served to anyone.
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "public"
	}
	return "private"
}

// Entry maps a path prefix to a visibility.
type Entry struct {
	Prefix     string
	Visibility Visibility
}

// Table is an immutable route table. Lookups are safe for concurrent use.
type Table struct {
	// sorted longest prefix first
	entries   []Entry
	guestOnly []string
}

// New builds a table from public and private prefix lists. guestOnly lists
// the public pages an authenticated user is bounced away from.
func New(public, private, guestOnly []string) (*Table, error) {
	t := &Table{}
	seen := map[string]int{}

	add := func(prefix string, v Visibility) error {
		p, err := normalize(prefix)
		if err != nil {
			return err
		}
		if i, ok := seen[p]; ok {
			// listed twice: private wins
			if v == Private {
				t.entries[i].Visibility = Private
			}
			return nil
		}
		seen[p] = len(t.entries)
		t.entries = append(t.entries, Entry{Prefix: p, Visibility: v})
		return nil
	}

	for _, p := range public {
		if err := add(p, Public); err != nil {
			return nil, err
		}
	}
	for _, p := range private {
		if err := add(p, Private); err != nil {
			return nil, err
		}
	}
	for _, g := range guestOnly {
		p, err := normalize(g)
		if err != nil {
			return nil, err
		}
		t.guestOnly = append(t.guestOnly, p)
	}

	sort.SliceStable(t.entries, func(i, j int) bool {
		return len(t.entries[i].Prefix) > len(t.entries[j].Prefix)
	})
	return t, nil
}

// MustNew is New for static tables; it panics on an invalid prefix.
func MustNew(public, private, guestOnly []string) *Table {
	t, err := New(public, private, guestOnly)
	if err != nil {
		panic(err)
	}
	return t
}

// Classify returns the visibility of the longest matching prefix, or
// Private when nothing matches.
func (t *Table) Classify(p string) Visibility {
	p = clean(p)
	for _, e := range t.entries {
		if matches(e.Prefix, p) {
			return e.Visibility
		}
	}
	return Private
}

// IsGuestOnly reports whether p is a login/register style page.
func (t *Table) IsGuestOnly(p string) bool {
	p = clean(p)
	for _, g := range t.guestOnly {
		if matches(g, p) {
			return true
		}
	}
	return false
}

// Entries returns a copy of the table, longest prefix first.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

func normalize(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "/") {
		return "", fmt.Errorf("route prefix %q must start with /", prefix)
	}
	return clean(prefix), nil
}

// clean resolves dot segments so "/blog/../dashboard" is judged as
// "/dashboard".
func clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// matches is a segment-aware prefix test: "/api" matches "/api" and
// "/api/links" but not "/apikeys". The root prefix only matches "/".
func matches(prefix, p string) bool {
	if prefix == "/" {
		return p == "/"
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
