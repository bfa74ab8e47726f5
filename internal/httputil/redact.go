package httputil

import (
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
)

// urlQuery matches the query part of an absolute URL embedded in text.
var urlQuery = regexp.MustCompile(`(https?://[^\s?"#]+)\?[^\s"#]*`)

// RedactURLs strips query strings from every URL in s. Query parameters
// may carry credentials such as API keys.
func RedactURLs(s string) string {
	return urlQuery.ReplaceAllString(s, "$1?REDACTED")
}

// HeaderTransport sets a fixed header on every outbound request.
type HeaderTransport struct {
	Base  http.RoundTripper
	Name  string
	Value string
}

// RoundTrip implements http.RoundTripper
func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(t.Name, t.Value)
	return base.RoundTrip(clone)
}

// WithHeader returns a copy of c that sends name: value on every request.
func WithHeader(c *http.Client, name, value string) *http.Client {
	out := *c
	out.Transport = &HeaderTransport{Base: c.Transport, Name: name, Value: value}
	return &out
}

// redactingLogger adapts slog to retryablehttp.LeveledLogger, removing
// query strings from logged URLs and errors.
type redactingLogger struct {
	l *slog.Logger
}

func (r redactingLogger) Error(msg string, kv ...interface{}) { r.l.Error(msg, redactFields(kv)...) }
func (r redactingLogger) Warn(msg string, kv ...interface{}) { r.l.Warn(msg, redactFields(kv)...) }
func (r redactingLogger) Info(msg string, kv ...interface{}) { r.l.Info(msg, redactFields(kv)...) }
func (r redactingLogger) Debug(msg string, kv ...interface{}) { r.l.Debug(msg, redactFields(kv)...) }

func redactFields(kv []interface{}) []interface{} {
	out := make([]interface{}, len(kv))
	for i, v := range kv {
		switch x := v.(type) {
		case *url.URL:
			if x != nil {
				u := *x
				if u.RawQuery != "" {
					u.RawQuery = "REDACTED"
				}
				out[i] = u.String()
				continue
			}
		case *http.Request:
			if x != nil && x.URL != nil {
				out[i] = RedactURLs(x.Method + " " + x.URL.String())
				continue
			}
		case error:
			out[i] = RedactURLs(x.Error())
			continue
		case string:
			out[i] = RedactURLs(x)
			continue
		}
		out[i] = v
	}
	return out
}
