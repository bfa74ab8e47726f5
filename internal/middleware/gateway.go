package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrschumacher/linkdash/internal/cookie"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/routes"
	"github.com/jrschumacher/linkdash/internal/session"
)

const (
	// DefaultLoginPath receives unauthenticated visitors of private pages.
	DefaultLoginPath = "/auth/login"
	// DefaultLandingPath receives signed-in visitors of guest-only pages.
	DefaultLandingPath = "/dashboard"
)

// SessionResolver resolves the session carried by a request.
type SessionResolver interface {
	Resolve(ctx context.Context, r *http.Request) session.Outcome
}

// GatewayConfig wires the gateway's collaborators.
type GatewayConfig struct {
	Routes      *routes.Table
	Sessions    SessionResolver
	Jar         cookie.Jar
	LoginPath   string
	LandingPath string
}

// Gateway runs before every handler. It resolves the session, refreshes the
// cookie of authenticated callers and either forwards the request or
// redirects it:
//
//	authenticated on a guest-only page   -> 307 LandingPath
//	authenticated elsewhere              -> forward with identity
//	anything else on a public path       -> forward without identity
//	anything else on a private path      -> 307 LoginPath?redirect=<path+query>
func Gateway(cfg GatewayConfig) func(http.Handler) http.Handler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = DefaultLandingPath
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stripIdentityHeaders(r.Header)

			guestOnly := cfg.Routes.IsGuestOnly(r.URL.Path)
			visibility := cfg.Routes.Classify(r.URL.Path)
			if guestOnly {
				// never bounce a visitor away from the login page itself
				visibility = routes.Public
			}

			out := cfg.Sessions.Resolve(r.Context(), r)

			if out.Authenticated() {
				cfg.Jar.Set(w, out.Cookie)
				if guestOnly {
					http.Redirect(w, r, cfg.LandingPath, http.StatusTemporaryRedirect)
					return
				}
				setIdentityHeaders(r.Header, out.Identity)
				ctx := WithIdentity(r.Context(), out.Identity, out.Payload.IDToken)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if visibility == routes.Public {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("Gateway denied request",
				"path", r.URL.Path,
				"session", out.Kind.String(),
				"request_id", RequestIDFrom(r.Context()))
			http.Redirect(w, r, LoginRedirect(cfg.LoginPath, r.URL), http.StatusTemporaryRedirect)
		})
	}
}

// LoginRedirect builds loginPath?redirect=<path+query> for the original URL.
// The path keeps its original escaping so an encoded "?" or "/" survives the
// round trip. Slashes are left unescaped so the target stays readable.
func LoginRedirect(loginPath string, original *url.URL) string {
	target := original.EscapedPath()
	if original.RawQuery != "" {
		target += "?" + original.RawQuery
	}
	return loginPath + "?redirect=" + strings.ReplaceAll(url.QueryEscape(target), "%2F", "/")
}
