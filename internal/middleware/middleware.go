// Package middleware provides the HTTP middleware chain: request IDs,
// logging, panic recovery, the session gateway and the page layout.
package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime/debug"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/jrschumacher/linkdash/internal/httputil"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/session"
	"github.com/jrschumacher/linkdash/internal/web"
)

const requestIDContextKey contextKey = "request_id"

// maxRequestIDLen bounds request IDs accepted from upstream proxies.
const maxRequestIDLen = 64

// RequestID assigns every request an ID, reusing a sane upstream
// X-Request-ID, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(session.RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		r.Header.Set(session.RequestIDHeader, id)
		w.Header().Set(session.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the ID assigned by RequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging records method, path, status and duration of every request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", RequestIDFrom(r.Context()))
	})
}

// Recovery turns a handler panic into a 500 JSON response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				httputil.WriteInternalError(w, fmt.Errorf("panic: %v", rec), "internal error",
					"path", r.URL.Path,
					"request_id", RequestIDFrom(r.Context()),
					"stack", string(debug.Stack()))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// LayoutMiddleware wraps the handler's HTML fragment in the site layout.
// Redirects and error statuses pass through unwrapped.
func LayoutMiddleware(appName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := httptest.NewRecorder()
			next.ServeHTTP(rw, r)

			for k, v := range rw.Header() {
				w.Header()[k] = v
			}
			if rw.Code >= http.StatusMultipleChoices {
				w.WriteHeader(rw.Code)
				_, _ = w.Write(rw.Body.Bytes())
				return
			}

			content := templ.ComponentFunc(func(_ context.Context, wtr io.Writer) error {
				_, err := wtr.Write(rw.Body.Bytes())
				return err
			})

			var viewer *web.Viewer
			if id, ok := IdentityFrom(r.Context()); ok {
				viewer = &web.Viewer{UID: id.UID, Email: id.Email}
			}

			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(rw.Code)
			if err := web.Page(appName, viewer, content).Render(r.Context(), w); err != nil {
				logger.Error("Failed to render page", "error", err, "path", r.URL.Path)
			}
		})
	}
}
