// Package auth serves the session endpoints and the sign-in pages.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/jrschumacher/linkdash/internal/config"
	"github.com/jrschumacher/linkdash/internal/cookie"
	"github.com/jrschumacher/linkdash/internal/httputil"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/middleware"
	"github.com/jrschumacher/linkdash/internal/session"
	"github.com/jrschumacher/linkdash/internal/svrlib"
	"github.com/jrschumacher/linkdash/internal/web"
)

// RefreshTokenHeader optionally carries the refresh token on /api/login.
const RefreshTokenHeader = "X-Refresh-Token"

const maxLoginBody = 16 << 10

// Issuer seals a session cookie for a freshly obtained ID token.
type Issuer interface {
	Issue(ctx context.Context, idToken, refreshToken string) (session.Outcome, error)
}

type AuthRouter struct {
	*svrlib.Router
	issuer Issuer
	jar    cookie.Jar
}

type loginRequest struct {
	RefreshToken string `json:"refreshToken"`
	Redirect     string `json:"redirect"`
}

type loginResponse struct {
	UID      string `json:"uid"`
	Redirect string `json:"redirect"`
}

// RegisterRoutes registers the session API under prefix+"/api" and the
// sign-in pages under prefix+"/auth".
func RegisterRoutes(mux *http.ServeMux, prefix string, cfg *config.Config, issuer Issuer, jar cookie.Jar) {
	router := &AuthRouter{
		Router: svrlib.NewRouter(mux, prefix, cfg),
		issuer: issuer,
		jar:    jar,
	}

	mux.HandleFunc("POST "+router.Path("/api/login"), router.LoginHandler)
	mux.HandleFunc("POST "+router.Path("/api/logout"), router.LogoutHandler)

	pages := middleware.PageGroup(mux, cfg.AppName)
	pages.HandleFunc("GET "+router.Path("/auth/login"), router.LoginPageHandler)
	pages.Handle("GET "+router.Path("/auth/register"), templ.Handler(web.Register()))
	pages.Handle("GET "+router.Path("/auth/recover"), templ.Handler(web.Recover()))
}

// LoginHandler handles POST /api/login. The browser signs in with the
// identity provider, then exchanges the ID token for a session cookie.
func (rt *AuthRouter) LoginHandler(w http.ResponseWriter, r *http.Request) {
	idToken, ok := bearerToken(r)
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var body loginRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid request body", "error", err)
			return
		}
	}
	refreshToken := r.Header.Get(RefreshTokenHeader)
	if refreshToken == "" {
		refreshToken = body.RefreshToken
	}

	out, err := rt.issuer.Issue(r.Context(), idToken, refreshToken)
	switch {
	case errors.Is(err, cookie.ErrCookieTooLarge):
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "session too large for a cookie", "reason", err)
		return
	case err != nil:
		httputil.WriteError(w, http.StatusUnauthorized, "invalid credentials", "reason", err)
		return
	}

	rt.jar.Set(w, out.Cookie)
	logger.Info("Session created", "uid", out.Identity.UID, "request_id", middleware.RequestIDFrom(r.Context()))
	httputil.WriteSuccess(w, loginResponse{
		UID:      out.Identity.UID,
		Redirect: SafeRedirect(body.Redirect),
	})
}

// LogoutHandler handles POST /api/logout. Form posts are redirected home;
// API callers get JSON.
func (rt *AuthRouter) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	rt.jar.Clear(w)
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		httputil.WriteSuccess(w, map[string]bool{"ok": true})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LoginPageHandler renders the sign-in form.
func (rt *AuthRouter) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	redirect := SafeRedirect(r.URL.Query().Get("redirect"))
	if err := web.Login(redirect).Render(r.Context(), w); err != nil {
		logger.Error("Failed to render login page", "error", err)
	}
}

// SafeRedirect returns target if it is a local path and the dashboard
// otherwise, so the login flow cannot be used as an open redirect.
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return middleware.DefaultLandingPath
	}
	return target
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
