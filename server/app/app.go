// Package app provides the page handlers: marketing pages, the blog and
// the signed-in dashboard.
package app

import (
	"context"
	"encoding/xml"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/jrschumacher/linkdash/internal/backend"
	"github.com/jrschumacher/linkdash/internal/config"
	"github.com/jrschumacher/linkdash/internal/content"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/middleware"
	"github.com/jrschumacher/linkdash/internal/svrlib"
	"github.com/jrschumacher/linkdash/internal/web"
	"golang.org/x/sync/errgroup"
)

const recentPosts = 3

// Backend is the part of the backend API the pages read from.
type Backend interface {
	Overview(ctx context.Context, bearer, uid string) (*backend.Response, error)
	ListLinks(ctx context.Context, bearer, uid string) (*backend.Response, error)
	APIKey(ctx context.Context, bearer, uid string) (*backend.Response, error)
}

// Router handles application-specific HTTP routes
type Router struct {
	*svrlib.Router
	content *content.Store
	backend Backend
}

// RegisterRoutes registers all page routes. static holds the files served
// under /static/.
func RegisterRoutes(mux *http.ServeMux, cfg *config.Config, docs *content.Store, api Backend, static fs.FS) *Router {
	router := &Router{
		Router:  svrlib.NewRouter(mux, "", cfg),
		content: docs,
		backend: api,
	}

	pages := middleware.PageGroup(mux, cfg.AppName)
	pages.HandleFunc("GET /{$}", router.LandingHandler)
	pages.HandleFunc("GET /blog", router.BlogHandler)
	pages.HandleFunc("GET /blog/{slug}", router.PostHandler)
	pages.HandleFunc("GET /pages/{slug}", router.PageHandler)
	pages.HandleFunc("GET /dashboard", router.DashboardHandler)
	pages.HandleFunc("GET /profile", router.ProfileHandler)

	mux.HandleFunc("GET /robots.txt", router.RobotsHandler)
	mux.HandleFunc("GET /sitemap.xml", router.SitemapHandler)
	if static != nil {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	}
	mux.HandleFunc("/", router.NotFoundHandler)

	return router
}

// LandingHandler renders the home page.
func (rt *Router) LandingHandler(w http.ResponseWriter, r *http.Request) {
	render(w, r, web.Landing(rt.Config.AppName, rt.content.Recent(recentPosts)))
}

// BlogHandler lists the published posts.
func (rt *Router) BlogHandler(w http.ResponseWriter, r *http.Request) {
	render(w, r, web.BlogIndex(rt.content.Posts()))
}

// PostHandler renders a single blog post.
func (rt *Router) PostHandler(w http.ResponseWriter, r *http.Request) {
	doc, ok := rt.content.Post(r.PathValue("slug"))
	if !ok {
		rt.NotFoundHandler(w, r)
		return
	}
	render(w, r, web.Article(doc))
}

// PageHandler renders a static content page such as /pages/terms.
func (rt *Router) PageHandler(w http.ResponseWriter, r *http.Request) {
	doc, ok := rt.content.Page(r.PathValue("slug"))
	if !ok {
		rt.NotFoundHandler(w, r)
		return
	}
	render(w, r, web.Article(doc))
}

// DashboardHandler shows the overview stats and the user's links. Both
// are fetched concurrently; a backend failure is shown in the page.
func (rt *Router) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	token, _ := middleware.IDTokenFrom(r.Context())
	if id == nil {
		rt.NotFoundHandler(w, r)
		return
	}

	var (
		data  web.DashboardData
		stats backend.Stats
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return fetch(ctx, &stats, func(ctx context.Context) (*backend.Response, error) {
			return rt.backend.Overview(ctx, token, id.UID)
		})
	})
	g.Go(func() error {
		return fetch(ctx, &data.Links, func(ctx context.Context) (*backend.Response, error) {
			return rt.backend.ListLinks(ctx, token, id.UID)
		})
	})
	if err := g.Wait(); err != nil {
		logger.Error("Failed to load dashboard",
			"uid", id.UID,
			"request_id", middleware.RequestIDFrom(r.Context()),
			"error", err)
		data = web.DashboardData{Error: "Your links could not be loaded. Please try again shortly."}
	} else {
		data.Stats = &stats
	}
	render(w, r, web.Dashboard(data))
}

// ProfileHandler shows the signed-in account with its masked API key.
func (rt *Router) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	token, _ := middleware.IDTokenFrom(r.Context())
	if id == nil {
		rt.NotFoundHandler(w, r)
		return
	}

	p := web.ProfileData{
		UID:           id.UID,
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
		SignedInAt:    id.AuthTime,
	}
	var key struct {
		Key string `json:"key"`
	}
	err := fetch(r.Context(), &key, func(ctx context.Context) (*backend.Response, error) {
		return rt.backend.APIKey(ctx, token, id.UID)
	})
	if err != nil {
		logger.Debug("No API key for profile", "uid", id.UID, "error", err)
	}
	p.APIKey = backend.MaskKey(key.Key)
	render(w, r, web.Profile(p))
}

// RobotsHandler keeps crawlers out of the signed-in area.
func (rt *Router) RobotsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "User-agent: *\nDisallow: /dashboard\nDisallow: /profile\nDisallow: /api/\nSitemap: %s/sitemap.xml\n",
		strings.TrimSuffix(rt.Config.PublicDomain, "/"))
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// SitemapHandler lists the public pages and posts.
func (rt *Router) SitemapHandler(w http.ResponseWriter, _ *http.Request) {
	base := strings.TrimSuffix(rt.Config.PublicDomain, "/")
	set := urlset{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  []sitemapURL{{Loc: base + "/"}, {Loc: base + "/blog"}},
	}
	for _, p := range rt.content.Posts() {
		set.URLs = append(set.URLs, sitemapURL{Loc: base + "/blog/" + p.Slug, LastMod: p.Date.Format("2006-01-02")})
	}
	for _, slug := range rt.content.PageSlugs() {
		set.URLs = append(set.URLs, sitemapURL{Loc: base + "/pages/" + slug})
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		logger.Error("Failed to encode sitemap", "error", err)
	}
}

// NotFoundHandler renders the 404 page inside the site layout.
func (rt *Router) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	var viewer *web.Viewer
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		viewer = &web.Viewer{UID: id.UID, Email: id.Email}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := web.Page(rt.Config.AppName, viewer, web.NotFound()).Render(r.Context(), w); err != nil {
		logger.Error("Failed to render page", "error", err, "path", r.URL.Path)
	}
}

func render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	if err := c.Render(r.Context(), w); err != nil {
		logger.Error("Failed to render page", "error", err, "path", r.URL.Path)
	}
}

func fetch(ctx context.Context, dst any, call func(context.Context) (*backend.Response, error)) error {
	resp, err := call(ctx)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("backend status %d", resp.Status)
	}
	return resp.Decode(dst)
}
