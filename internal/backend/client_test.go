package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   string
}

func newBackend(t *testing.T, status int, reply any) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*rec = recorded{method: r.Method, path: r.URL.EscapedPath(), auth: r.Header.Get("Authorization"), body: string(body)}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api/v1", Options{Timeout: time.Second})
	require.NoError(t, err)
	return c, rec
}

func TestClient_Routes(t *testing.T) {
	ctx := context.Background()
	uid := "U1"

	tests := []struct {
		name       string
		call       func(c *Client) (*Response, error)
		wantMethod string
		wantPath   string
	}{
		{"list links", func(c *Client) (*Response, error) { return c.ListLinks(ctx, "tok", uid) }, http.MethodGet, "/api/v1/links/user/U1"},
		{"create link", func(c *Client) (*Response, error) {
			return c.CreateLink(ctx, "tok", NewLink{URL: "https://example.com", UserID: &uid})
		}, http.MethodPost, "/api/v1/links"},
		{"update link", func(c *Client) (*Response, error) { return c.UpdateLink(ctx, "tok", LinkChange{ID: "1"}) }, http.MethodPut, "/api/v1/links"},
		{"delete link", func(c *Client) (*Response, error) { return c.DeleteLink(ctx, "tok", LinkChange{ID: "1"}) }, http.MethodDelete, "/api/v1/links"},
		{"list pages", func(c *Client) (*Response, error) { return c.ListPages(ctx, "tok", uid) }, http.MethodGet, "/api/v1/links-page/user/U1"},
		{"public page", func(c *Client) (*Response, error) { return c.PublicPage(ctx, "tok", "my page") }, http.MethodGet, "/api/v1/links-page/my%20page"},
		{"user stats", func(c *Client) (*Response, error) { return c.UserStats(ctx, "tok", uid) }, http.MethodGet, "/api/v1/stats/user/U1"},
		{"link stats", func(c *Client) (*Response, error) { return c.LinkStats(ctx, "tok", "L9") }, http.MethodGet, "/api/v1/stats/link/L9"},
		{"overview", func(c *Client) (*Response, error) { return c.Overview(ctx, "tok", uid) }, http.MethodGet, "/api/v1/stats/user/U1/overview"},
		{"api key", func(c *Client) (*Response, error) { return c.APIKey(ctx, "tok", uid) }, http.MethodGet, "/api/v1/apikeys/U1"},
		{"create api key", func(c *Client) (*Response, error) { return c.CreateAPIKey(ctx, "tok", uid) }, http.MethodPost, "/api/v1/apikeys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newBackend(t, http.StatusOK, map[string]string{"ok": "yes"})
			resp, err := tt.call(c)
			require.NoError(t, err)
			assert.True(t, resp.OK())
			assert.Equal(t, tt.wantMethod, rec.method)
			assert.Equal(t, tt.wantPath, rec.path)
			assert.Equal(t, "Bearer tok", rec.auth)
		})
	}
}

func TestClient_RelaysErrorStatus(t *testing.T) {
	c, _ := newBackend(t, http.StatusNotFound, map[string]string{"error": "not found"})

	resp, err := c.ListLinks(context.Background(), "tok", "U1")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"error":"not found"}`, string(resp.Body))
}

func TestClient_AnonymousLinkSendsNullUser(t *testing.T) {
	c, rec := newBackend(t, http.StatusCreated, Link{ID: "1"})

	resp, err := c.CreateLink(context.Background(), "frontend-key", NewLink{URL: "https://example.com"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com","userId":null}`, rec.body)

	var link Link
	require.NoError(t, resp.Decode(&link))
	assert.Equal(t, "1", link.ID)
}

func TestClient_RetriesReadsOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL, Options{Timeout: time.Second, RetryMax: 1, Backoff: time.Millisecond})
	require.NoError(t, err)

	_, _ = c.ListLinks(context.Background(), "tok", "U1")
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	resp, err := c.CreateLink(context.Background(), "tok", NewLink{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not a url", Options{})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	c, _ := newBackend(t, http.StatusOK, nil)
	assert.NoError(t, c.Ping(context.Background()))

	down, err := New("http://127.0.0.1:1", Options{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.Error(t, down.Ping(context.Background()))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "********", MaskKey("abcdefgh"))
	assert.Equal(t, "abcd*efgh", MaskKey("abcdXefgh"))
}
