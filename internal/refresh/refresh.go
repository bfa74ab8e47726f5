// Package refresh exchanges refresh tokens for new ID tokens at the identity
// provider's token endpoint.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jrschumacher/linkdash/internal/httputil"
	"github.com/jrschumacher/linkdash/internal/revocation"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"
)

var (
	// ErrRefreshFailed means no new token was obtained.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrNetwork marks a refresh failure caused by transport or provider
	// unavailability rather than a rejected refresh token.
	ErrNetwork = errors.New("identity provider unreachable")
	// ErrRevoked means the user has been revoked and must sign in again.
	ErrRevoked = errors.New("session revoked")
)

// APIKeyHeader carries the identity API key. A header keeps the key out of
// URLs, which end up in logs and errors.
const APIKeyHeader = "X-Goog-Api-Key"

// Tokens is the result of a successful refresh.
type Tokens struct {
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
	UID          string
}

// Config describes the token endpoint.
type Config struct {
	TokenURL string
	APIKey   string
	// Timeout bounds the whole exchange including the retry.
	Timeout time.Duration
	// Backoff is the wait before the single retry.
	Backoff time.Duration
}

// Coordinator performs refresh-token grants. It keeps no per-session state,
// so concurrent refreshes of the same token are independent.
type Coordinator struct {
	oauth   *oauth2.Config
	client  *http.Client
	revoked revocation.Checker
	timeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHTTPClient replaces the retrying client.
func WithHTTPClient(c *http.Client) Option {
	return func(co *Coordinator) { co.client = c }
}

// WithRevocation consults checker after every successful exchange.
func WithRevocation(checker revocation.Checker) Option {
	return func(co *Coordinator) { co.revoked = checker }
}

// NewCoordinator creates a coordinator for cfg. Transient failures are
// retried exactly once.
func NewCoordinator(cfg Config, opts ...Option) (*Coordinator, error) {
	endpoint, err := url.Parse(cfg.TokenURL)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid token url %q", cfg.TokenURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	co := &Coordinator{
		oauth: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  endpoint.String(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		timeout: cfg.Timeout,
	}
	for _, opt := range opts {
		opt(co)
	}
	if co.client == nil {
		co.client = httputil.NewRetryClient(httputil.RetryOptions{
			RetryMax: 1,
			Backoff:  cfg.Backoff,
			Timeout:  cfg.Timeout,
		})
	}
	if cfg.APIKey != "" {
		co.client = httputil.WithHeader(co.client, APIKeyHeader, cfg.APIKey)
	}
	return co, nil
}

// Refresh exchanges refreshToken for a new ID token. The returned error
// always wraps ErrRefreshFailed or ErrRevoked.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return Tokens{}, fmt.Errorf("%w: provider rejected refresh: %s", ErrRefreshFailed, rerr.ErrorCode)
		}
		return Tokens{}, fmt.Errorf("%w: %w: %s", ErrRefreshFailed, ErrNetwork, httputil.RedactURLs(err.Error()))
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return Tokens{}, fmt.Errorf("%w: response has no id_token", ErrRefreshFailed)
	}

	out := Tokens{
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		UID:          subject(tok, idToken),
	}

	if c.revoked != nil {
		revoked, err := c.revoked.IsRevoked(ctx, out.UID)
		if err != nil {
			// fail closed
			return Tokens{}, fmt.Errorf("%w: revocation check: %v", ErrRefreshFailed, err)
		}
		if revoked {
			return Tokens{}, fmt.Errorf("%w: uid %s", ErrRevoked, out.UID)
		}
	}
	return out, nil
}

// subject prefers the user_id field of the token response and falls back to
// the unverified sub claim. The caller verifies the ID token before use.
func subject(tok *oauth2.Token, idToken string) string {
	if uid, ok := tok.Extra("user_id").(string); ok && uid != "" {
		return uid
	}
	parsed, err := jwt.ParseString(idToken, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return ""
	}
	return parsed.Subject()
}
