// Package web holds the templ components that render the site's pages.
package web

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Viewer is the signed-in user shown in the navigation bar.
type Viewer struct {
	UID   string
	Email string
}

func esc(s string) string { return templ.EscapeString(s) }

// writer accumulates the first write error so components can emit markup
// without checking every call.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

func (w *writer) render(ctx context.Context, c templ.Component) {
	if w.err != nil || c == nil {
		return
	}
	w.err = c.Render(ctx, w.w)
}

// Page wraps content in the site layout.
func Page(appName string, viewer *Viewer, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		w.printf(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		w.printf(`<title>%s</title><link rel="stylesheet" href="/static/app.css"></head><body>`, esc(appName))
		w.render(ctx, navbar(appName, viewer))
		w.printf(`<main>`)
		w.render(ctx, content)
		w.printf(`</main><footer><p>&copy; %s</p></footer></body></html>`, esc(appName))
		return w.err
	})
}

func navbar(appName string, viewer *Viewer) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<nav><a class="brand" href="/">%s</a><a href="/blog">Blog</a>`, esc(appName))
		if viewer != nil {
			name := viewer.Email
			if strings.TrimSpace(name) == "" {
				name = viewer.UID
			}
			w.printf(`<a href="/dashboard">Dashboard</a><a href="/profile">%s</a>`, esc(name))
			w.printf(`<form method="post" action="/api/logout"><button type="submit">Sign out</button></form>`)
		} else {
			w.printf(`<a href="/auth/login">Sign in</a><a href="/auth/register">Register</a>`)
		}
		w.printf(`</nav>`)
		return w.err
	})
}
