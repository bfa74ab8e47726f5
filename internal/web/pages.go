package web

import (
	"context"
	"io"
	"time"

	"github.com/a-h/templ"
	"github.com/jrschumacher/linkdash/internal/backend"
	"github.com/jrschumacher/linkdash/internal/content"
)

// Landing is the marketing home page with the anonymous shortener form.
func Landing(appName string, recent []content.Document) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<section class="hero"><h1>%s</h1><p>Short links, link pages and click analytics.</p>`, esc(appName))
		w.printf(`<form id="shorten" method="post" action="/api/public_links">`)
		w.printf(`<input type="url" name="url" placeholder="https://" required><button type="submit">Shorten</button></form></section>`)
		if len(recent) > 0 {
			w.printf(`<section class="home-blog"><h2>From the blog</h2>`)
			w.render(ctx, postList(recent))
			w.printf(`</section>`)
		}
		return w.err
	})
}

// BlogIndex lists all published posts.
func BlogIndex(posts []content.Document) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<h1>Blog</h1>`)
		if len(posts) == 0 {
			w.printf(`<p>No posts yet.</p>`)
			return w.err
		}
		w.render(ctx, postList(posts))
		return w.err
	})
}

func postList(posts []content.Document) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<ul class="posts">`)
		for _, p := range posts {
			w.printf(`<li><a href="/blog/%s">%s</a> <time>%s</time><p>%s</p></li>`,
				esc(p.Slug), esc(p.Title), p.Date.Format("2006-01-02"), esc(p.Summary))
		}
		w.printf(`</ul>`)
		return w.err
	})
}

// Article renders a blog post or a static content page.
func Article(doc content.Document) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<article><h1>%s</h1>`, esc(doc.Title))
		if !doc.Date.IsZero() {
			w.printf(`<time>%s</time>`, doc.Date.Format("January 2, 2006"))
		}
		for _, para := range doc.Paragraphs {
			w.printf(`<p>%s</p>`, esc(para))
		}
		w.printf(`</article>`)
		return w.err
	})
}

// DashboardData is what the dashboard shows.
type DashboardData struct {
	Stats *backend.Stats
	Links []backend.Link
	// Error is shown instead of the data when the backend failed.
	Error string
}

// Dashboard is the signed-in landing page.
func Dashboard(data DashboardData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<h1>Dashboard</h1>`)
		if data.Error != "" {
			w.printf(`<p class="error">%s</p>`, esc(data.Error))
			return w.err
		}
		if s := data.Stats; s != nil {
			w.printf(`<section class="stats"><div><b>%d</b> links</div><div><b>%d</b> clicks</div>`, s.Links.Total, s.Links.Clicks)
			w.printf(`<div><b>%d</b> pages</div><div><b>%d</b> views</div></section>`, s.Pages.Total, s.Pages.Views)
		}
		w.printf(`<h2>Recent links</h2>`)
		if len(data.Links) == 0 {
			w.printf(`<p>You have not shortened any links yet.</p>`)
			return w.err
		}
		w.printf(`<table class="links"><thead><tr><th>Short</th><th>Original</th><th>Clicks</th><th>Created</th></tr></thead><tbody>`)
		for _, l := range data.Links {
			w.printf(`<tr><td><a href="%s">%s</a></td><td>%s</td><td>%d</td><td>%s</td></tr>`,
				esc(l.FinalURL), esc(l.Shortened), esc(l.Original), l.Clicks, l.CreatedAt.Format("2006-01-02"))
		}
		w.printf(`</tbody></table>`)
		return w.err
	})
}

// ProfileData is the account summary on the profile page.
type ProfileData struct {
	UID           string
	Email         string
	EmailVerified bool
	SignedInAt    time.Time
	APIKey        string
}

// Profile shows the signed-in account.
func Profile(p ProfileData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<h1>Profile</h1><dl><dt>User ID</dt><dd>%s</dd><dt>Email</dt><dd>%s</dd>`, esc(p.UID), esc(p.Email))
		verified := "no"
		if p.EmailVerified {
			verified = "yes"
		}
		w.printf(`<dt>Email verified</dt><dd>%s</dd>`, verified)
		if !p.SignedInAt.IsZero() {
			w.printf(`<dt>Signed in</dt><dd>%s</dd>`, p.SignedInAt.Format(time.RFC1123))
		}
		w.printf(`<dt>API key</dt><dd><code>%s</code></dd></dl>`, esc(p.APIKey))
		w.printf(`<form method="post" action="/api/tokens"><button type="submit">Generate API key</button></form>`)
		return w.err
	})
}

// Login is the sign-in form. redirect is where to go after signing in.
func Login(redirect string) templ.Component {
	return authForm("Sign in", "login", redirect)
}

// Register is the sign-up form.
func Register() templ.Component {
	return authForm("Create account", "register", "")
}

// Recover is the password-reset form.
func Recover() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<h1>Reset password</h1><form id="recover" data-action="recover">`)
		w.printf(`<input type="email" name="email" placeholder="Email" required>`)
		w.printf(`<button type="submit">Send reset link</button></form><p><a href="/auth/login">Back to sign in</a></p>`)
		return w.err
	})
}

// authForm renders the identity-provider sign-in widget. The browser
// obtains the ID token from the provider and posts it to /api/login.
func authForm(title, action, redirect string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<h1>%s</h1><form id="auth" data-action="%s" data-session-endpoint="/api/login"`, esc(title), action)
		if redirect != "" {
			w.printf(` data-redirect="%s"`, esc(redirect))
		}
		w.printf(`><input type="email" name="email" placeholder="Email" required>`)
		w.printf(`<input type="password" name="password" placeholder="Password" required>`)
		w.printf(`<button type="submit">%s</button></form>`, esc(title))
		if action == "login" {
			w.printf(`<p><a href="/auth/recover">Forgot password?</a> <a href="/auth/register">Create account</a></p>`)
		} else {
			w.printf(`<p><a href="/auth/login">Already have an account?</a></p>`)
		}
		return w.err
	})
}

// NotFound is the 404 page.
func NotFound() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.printf(`<h1>Page not found</h1><p><a href="/">Back home</a></p>`)
		return w.err
	})
}
