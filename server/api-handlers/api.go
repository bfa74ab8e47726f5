// Package api relays dashboard calls to the URL-shortener backend on
// behalf of the signed-in user.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jrschumacher/linkdash/internal/backend"
	"github.com/jrschumacher/linkdash/internal/config"
	"github.com/jrschumacher/linkdash/internal/httputil"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/middleware"
	"github.com/jrschumacher/linkdash/internal/svrlib"
	"github.com/jrschumacher/linkdash/internal/validation"
)

const maxBodySize = 64 << 10

type APIRouter struct {
	*svrlib.Router
	backend *backend.Client
}

type createLinkRequest struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

type changeLinkRequest struct {
	ID        string `json:"id"`
	Original  string `json:"original"`
	Shortened string `json:"shortened"`
}

// RegisterRoutes registers the /api pass-through endpoints.
func RegisterRoutes(mux *http.ServeMux, baseRoute string, cfg *config.Config, client *backend.Client) {
	router := &APIRouter{
		Router:  svrlib.NewRouter(mux, baseRoute, cfg),
		backend: client,
	}

	private := middleware.ProtectedAPIGroup(mux)
	private.HandleFunc("GET "+router.Path("/links"), router.ListLinksHandler)
	private.HandleFunc("POST "+router.Path("/links"), router.CreateLinkHandler)
	private.HandleFunc("PUT "+router.Path("/links"), router.UpdateLinkHandler)
	private.HandleFunc("DELETE "+router.Path("/links"), router.DeleteLinkHandler)
	private.HandleFunc("GET "+router.Path("/pages"), router.ListPagesHandler)
	private.HandleFunc("GET "+router.Path("/stats"), router.StatsHandler)
	private.HandleFunc("GET "+router.Path("/tokens"), router.GetTokenHandler)
	private.HandleFunc("POST "+router.Path("/tokens"), router.CreateTokenHandler)

	public := middleware.RawGroup(mux)
	public.HandleFunc("POST "+router.Path("/public_links"), router.PublicLinkHandler)
	public.HandleFunc("GET "+router.Path("/public_pages"), router.PublicPageHandler)
}

// ListLinksHandler handles GET /api/links
func (rt *APIRouter) ListLinksHandler(w http.ResponseWriter, r *http.Request) {
	uid, token := caller(r)
	resp, err := rt.backend.ListLinks(r.Context(), token, uid)
	relay(w, r, resp, err)
}

// CreateLinkHandler handles POST /api/links. The link is always owned by
// the signed-in user.
func (rt *APIRouter) CreateLinkHandler(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.LinkValidation{URL: req.URL, Domain: req.Domain}
	if !validate(w, v.Validate()) {
		return
	}

	uid, token := caller(r)
	resp, err := rt.backend.CreateLink(r.Context(), token, backend.NewLink{
		URL:    req.URL,
		Domain: req.Domain,
		UserID: &uid,
	})
	relay(w, r, resp, err)
}

// UpdateLinkHandler handles PUT /api/links
func (rt *APIRouter) UpdateLinkHandler(w http.ResponseWriter, r *http.Request) {
	change, ok := rt.linkChange(w, r)
	if !ok {
		return
	}
	_, token := caller(r)
	resp, err := rt.backend.UpdateLink(r.Context(), token, change)
	relay(w, r, resp, err)
}

// DeleteLinkHandler handles DELETE /api/links
func (rt *APIRouter) DeleteLinkHandler(w http.ResponseWriter, r *http.Request) {
	change, ok := rt.linkChange(w, r)
	if !ok {
		return
	}
	_, token := caller(r)
	resp, err := rt.backend.DeleteLink(r.Context(), token, change)
	if err == nil && resp.Status == http.StatusNoContent {
		httputil.WriteSuccess(w, map[string]string{"message": "Link deleted successfully"})
		return
	}
	relay(w, r, resp, err)
}

func (rt *APIRouter) linkChange(w http.ResponseWriter, r *http.Request) (backend.LinkChange, bool) {
	var req changeLinkRequest
	if !decode(w, r, &req) {
		return backend.LinkChange{}, false
	}
	v := validation.LinkUpdateValidation{ID: req.ID, Original: req.Original, Shortened: req.Shortened}
	if !validate(w, v.Validate()) {
		return backend.LinkChange{}, false
	}
	uid, _ := caller(r)
	return backend.LinkChange{
		ID:        req.ID,
		Original:  req.Original,
		Shortened: req.Shortened,
		UserID:    uid,
	}, true
}

// ListPagesHandler handles GET /api/pages
func (rt *APIRouter) ListPagesHandler(w http.ResponseWriter, r *http.Request) {
	uid, token := caller(r)
	resp, err := rt.backend.ListPages(r.Context(), token, uid)
	relay(w, r, resp, err)
}

// StatsHandler handles GET /api/stats. ?analytics returns per-user
// analytics, ?linkId=... a single link, and no query the overview.
func (rt *APIRouter) StatsHandler(w http.ResponseWriter, r *http.Request) {
	uid, token := caller(r)
	q := r.URL.Query()

	var (
		resp *backend.Response
		err  error
	)
	switch {
	case q.Has("analytics"):
		resp, err = rt.backend.UserStats(r.Context(), token, uid)
	case q.Get("linkId") != "":
		resp, err = rt.backend.LinkStats(r.Context(), token, q.Get("linkId"))
	default:
		resp, err = rt.backend.Overview(r.Context(), token, uid)
	}
	relay(w, r, resp, err)
}

// GetTokenHandler handles GET /api/tokens. Only a masked key ever
// reaches the browser after creation.
func (rt *APIRouter) GetTokenHandler(w http.ResponseWriter, r *http.Request) {
	uid, token := caller(r)
	resp, err := rt.backend.APIKey(r.Context(), token, uid)
	if err != nil || !resp.OK() {
		relay(w, r, resp, err)
		return
	}

	var body map[string]any
	if err := resp.Decode(&body); err != nil {
		httputil.WriteError(w, http.StatusBadGateway, "invalid backend response", "error", err)
		return
	}
	for _, field := range []string{"key", "apiKey", "token"} {
		if s, ok := body[field].(string); ok {
			body[field] = backend.MaskKey(s)
		}
	}
	httputil.WriteJSON(w, resp.Status, body)
}

// CreateTokenHandler handles POST /api/tokens
func (rt *APIRouter) CreateTokenHandler(w http.ResponseWriter, r *http.Request) {
	uid, token := caller(r)
	resp, err := rt.backend.CreateAPIKey(r.Context(), token, uid)
	relay(w, r, resp, err)
}

// PublicLinkHandler handles POST /api/public_links: anonymous shortening
// from the landing page, authorized with the frontend API key.
func (rt *APIRouter) PublicLinkHandler(w http.ResponseWriter, r *http.Request) {
	if rt.Config.FrontendAPIKey == "" {
		httputil.WriteError(w, http.StatusServiceUnavailable, "public links are disabled")
		return
	}
	var req createLinkRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.LinkValidation{URL: req.URL, Domain: req.Domain}
	if !validate(w, v.Validate()) {
		return
	}
	resp, err := rt.backend.CreateLink(r.Context(), rt.Config.FrontendAPIKey, backend.NewLink{
		URL:    req.URL,
		Domain: req.Domain,
	})
	relay(w, r, resp, err)
}

// PublicPageHandler handles GET /api/public_pages?alias=...
func (rt *APIRouter) PublicPageHandler(w http.ResponseWriter, r *http.Request) {
	if !rt.frontendAuthorized(r) {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	alias := r.URL.Query().Get("alias")
	if verr := validation.ValidateAlias(alias, "alias"); verr != nil {
		httputil.WriteValidationError(w, validation.Errors{*verr})
		return
	}
	resp, err := rt.backend.PublicPage(r.Context(), rt.Config.FrontendAPIKey, alias)
	relay(w, r, resp, err)
}

func (rt *APIRouter) frontendAuthorized(r *http.Request) bool {
	key := rt.Config.FrontendAPIKey
	if key == "" {
		return false
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1
}

func caller(r *http.Request) (uid, token string) {
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		uid = id.UID
	}
	token, _ = middleware.IDTokenFrom(r.Context())
	return uid, token
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body", "error", err)
		return false
	}
	return true
}

func validate(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		httputil.WriteValidationError(w, verrs)
		return false
	}
	httputil.WriteError(w, http.StatusBadRequest, err.Error())
	return false
}

// relay copies a backend reply to the browser.
func relay(w http.ResponseWriter, r *http.Request, resp *backend.Response, err error) {
	if err != nil {
		logger.Error("Backend request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFrom(r.Context()),
			"error", err)
		httputil.WriteError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
