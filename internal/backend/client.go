// Package backend is the client for the URL-shortener REST API. Every call
// carries the caller's bearer credential: the user's ID token, or the
// frontend API key for anonymous routes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrschumacher/linkdash/internal/httputil"
)

// maxResponseSize bounds backend bodies relayed to the browser.
const maxResponseSize = 1 << 20

// Link is a shortened link as returned by the backend.
type Link struct {
	ID        string    `json:"id"`
	Original  string    `json:"original"`
	Shortened string    `json:"shortened"`
	FinalURL  string    `json:"finalUrl"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	Clicks    int       `json:"clicks"`
}

// LinksPage is a user's public page of links.
type LinksPage struct {
	ID          string `json:"id"`
	Alias       string `json:"alias"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageURL"`
	Links       []Link `json:"links"`
}

// Stats is the dashboard overview.
type Stats struct {
	Links struct {
		Clicks int `json:"clicks"`
		Total  int `json:"total"`
	} `json:"links"`
	Pages struct {
		Views int `json:"views"`
		Total int `json:"total"`
	} `json:"pages"`
}

// NewLink is the body of a link creation.
type NewLink struct {
	URL    string  `json:"url"`
	Domain string  `json:"domain,omitempty"`
	UserID *string `json:"userId"`
}

// LinkChange is the body of a link update or deletion.
type LinkChange struct {
	ID        string `json:"id"`
	Original  string `json:"original,omitempty"`
	Shortened string `json:"shortened,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// Response is a backend reply relayed as is.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// MaskKey hides all but the first and last four characters of an API key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Client talks to the backend API. Reads are retried on transient failures;
// writes are sent once.
type Client struct {
	reads   *http.Client
	writes  *http.Client
	baseURL *url.URL
}

// Options configures a Client.
type Options struct {
	Timeout  time.Duration
	RetryMax int
	Backoff  time.Duration
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		reads: httputil.NewRetryClient(httputil.RetryOptions{
			RetryMax: opts.RetryMax,
			Backoff:  opts.Backoff,
			Timeout:  opts.Timeout,
		}),
		writes:  &http.Client{Timeout: opts.Timeout},
		baseURL: u,
	}, nil
}

// ListLinks returns the links owned by uid.
func (c *Client) ListLinks(ctx context.Context, bearer, uid string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "links/user/"+url.PathEscape(uid), bearer, nil)
}

// CreateLink shortens a URL. A nil UserID creates an anonymous link.
func (c *Client) CreateLink(ctx context.Context, bearer string, link NewLink) (*Response, error) {
	return c.do(ctx, http.MethodPost, "links", bearer, link)
}

// UpdateLink changes a link's target or alias.
func (c *Client) UpdateLink(ctx context.Context, bearer string, change LinkChange) (*Response, error) {
	return c.do(ctx, http.MethodPut, "links", bearer, change)
}

// DeleteLink removes a link.
func (c *Client) DeleteLink(ctx context.Context, bearer string, change LinkChange) (*Response, error) {
	return c.do(ctx, http.MethodDelete, "links", bearer, change)
}

// ListPages returns the link pages owned by uid.
func (c *Client) ListPages(ctx context.Context, bearer, uid string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "links-page/user/"+url.PathEscape(uid), bearer, nil)
}

// PublicPage returns the page published under alias.
func (c *Client) PublicPage(ctx context.Context, bearer, alias string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "links-page/"+url.PathEscape(alias), bearer, nil)
}

// UserStats returns per-link analytics for uid.
func (c *Client) UserStats(ctx context.Context, bearer, uid string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "stats/user/"+url.PathEscape(uid), bearer, nil)
}

// LinkStats returns analytics for one link.
func (c *Client) LinkStats(ctx context.Context, bearer, linkID string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "stats/link/"+url.PathEscape(linkID), bearer, nil)
}

// Overview returns the dashboard totals for uid.
func (c *Client) Overview(ctx context.Context, bearer, uid string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "stats/user/"+url.PathEscape(uid)+"/overview", bearer, nil)
}

// APIKey returns uid's API key.
func (c *Client) APIKey(ctx context.Context, bearer, uid string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "apikeys/"+url.PathEscape(uid), bearer, nil)
}

// CreateAPIKey issues a new API key for uid.
func (c *Client) CreateAPIKey(ctx context.Context, bearer, uid string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "apikeys", bearer, map[string]string{"userId": uid})
}

// Ping checks that the backend answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.writes.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: status=%d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body any) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("build request path: %w", err)
	}
	target := c.baseURL.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	client := c.writes
	if method == http.MethodGet {
		client = c.reads
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
