package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := logger.Logger()
	logger.SetLogger(slog.New(slog.NewTextHandler(buf, nil)))
	t.Cleanup(func() { logger.SetLogger(prev) })
	return buf
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(session.RequestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(session.RequestIDHeader, "upstream-id-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "upstream-id-1", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(session.RequestIDHeader, "bad id with spaces")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.NotEqual(t, "bad id with spaces", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(session.RequestIDHeader, strings.Repeat("x", 100))
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Len(t, seen, 36)
}

func TestLogging(t *testing.T) {
	logs := captureLogs(t)
	h := NewChain(RequestID, Logging).ThenFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/blog", nil))
	out := logs.String()
	assert.Contains(t, out, "HTTP request")
	assert.Contains(t, out, "path=/blog")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "request_id=")
}

func TestRecovery(t *testing.T) {
	logs := captureLogs(t)
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret internals")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/links", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret internals")
	assert.Contains(t, logs.String(), "secret internals")
}

func TestRequireIdentity(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	RequireIdentity(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/links", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	TestProtectedChain("U1", "raw-token").Then(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/links", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIdentityContext(t *testing.T) {
	var uid, token string
	h := TestIdentityMiddleware("U7", "raw-7")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		uid = id.UID
		token, _ = IDTokenFrom(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "U7", uid)
	assert.Equal(t, "raw-7", token)

	_, ok := IdentityFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}

func TestLayoutMiddleware(t *testing.T) {
	fragment := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>inner</p>"))
	})

	rec := httptest.NewRecorder()
	LayoutMiddleware("linkdash")(fragment).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blog", nil))
	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, "<p>inner</p>")
	assert.Contains(t, body, `href="/auth/login"`)

	rec = httptest.NewRecorder()
	h := TestIdentityMiddleware("U1", "tok")(LayoutMiddleware("linkdash")(fragment))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Contains(t, rec.Body.String(), "U1@example.com")
	assert.Contains(t, rec.Body.String(), "Sign out")
}

func TestLayoutMiddleware_PassesRedirectsThrough(t *testing.T) {
	redirect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})

	rec := httptest.NewRecorder()
	LayoutMiddleware("linkdash")(redirect).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/elsewhere", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "<!DOCTYPE html>")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	base := NewChain(mark("a"), mark("b"))
	extended := base.Append(mark("c"))
	extended.ThenFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)

	order = nil
	base.Then(nil).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order, "Append does not modify the original chain")
}

func TestRouteGroup(t *testing.T) {
	mux := http.NewServeMux()
	api := ProtectedAPIGroup(mux)
	api.HandleFunc("GET /api/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	RawGroup(mux).Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	TestIdentityMiddleware("U1", "tok")(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
