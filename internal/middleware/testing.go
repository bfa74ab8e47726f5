package middleware

import (
	"net/http"
	"time"

	"github.com/jrschumacher/linkdash/internal/idtoken"
)

// TestIdentityMiddleware attaches a fixed identity, standing in for the
// gateway in handler tests.
func TestIdentityMiddleware(uid, rawToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := &idtoken.Identity{
				UID:           uid,
				Email:         uid + "@example.com",
				EmailVerified: true,
				CustomClaims:  map[string]any{},
				ExpiresAt:     time.Now().Add(time.Hour),
			}
			setIdentityHeaders(r.Header, id)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id, rawToken)))
		})
	}
}

// TestProtectedChain is the API chain with the gateway replaced by a fixed identity.
func TestProtectedChain(uid, rawToken string) *Chain {
	return NewChain(
		TestIdentityMiddleware(uid, rawToken),
		RequireIdentity,
	)
}
