package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jrschumacher/linkdash/internal/httputil"
	"github.com/jrschumacher/linkdash/internal/idtoken"
)

// Identity headers forwarded to downstream handlers. Incoming copies are
// always removed by the gateway.
const (
	HeaderUID           = "X-Auth-Uid"
	HeaderEmail         = "X-Auth-Email"
	HeaderEmailVerified = "X-Auth-Email-Verified"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	idTokenContextKey  contextKey = "id_token"
)

// WithIdentity returns a copy of ctx carrying the verified identity and the
// raw ID token it came from.
func WithIdentity(ctx context.Context, id *idtoken.Identity, rawToken string) context.Context {
	ctx = context.WithValue(ctx, identityContextKey, id)
	return context.WithValue(ctx, idTokenContextKey, rawToken)
}

// IdentityFrom extracts the identity attached by the gateway.
func IdentityFrom(ctx context.Context) (*idtoken.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*idtoken.Identity)
	return id, ok && id != nil
}

// IDTokenFrom returns the raw ID token for calls to the backend API.
func IDTokenFrom(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(idTokenContextKey).(string)
	return tok, ok && tok != ""
}

// RequireIdentity rejects requests that reach an API handler without an
// identity. The gateway already redirects these; this guards routes that
// were misconfigured as public.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			httputil.WriteError(w, http.StatusUnauthorized, "authentication required", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func stripIdentityHeaders(h http.Header) {
	h.Del(HeaderUID)
	h.Del(HeaderEmail)
	h.Del(HeaderEmailVerified)
}

func setIdentityHeaders(h http.Header, id *idtoken.Identity) {
	h.Set(HeaderUID, id.UID)
	if id.Email != "" {
		h.Set(HeaderEmail, id.Email)
	}
	h.Set(HeaderEmailVerified, strconv.FormatBool(id.EmailVerified))
}
