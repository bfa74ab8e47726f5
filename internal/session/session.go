// Package session resolves the session cookie on an incoming request into
// one of four outcomes and re-issues the cookie for authenticated callers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/jrschumacher/linkdash/internal/cookie"
	"github.com/jrschumacher/linkdash/internal/idtoken"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/refresh"
)

// RequestIDHeader carries the request ID assigned at the edge.
const RequestIDHeader = "X-Request-ID"

// Kind enumerates session outcomes.
type Kind int

const (
	NoSession Kind = iota
	ValidSession
	InvalidSession
	ErrorState
)

func (k Kind) String() string {
	switch k {
	case NoSession:
		return "no_session"
	case ValidSession:
		return "valid"
	case InvalidSession:
		return "invalid"
	case ErrorState:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the per-request result of Resolve. Identity and Cookie are set
// only for ValidSession; Err records why a session was rejected.
type Outcome struct {
	Kind      Kind
	Identity  *idtoken.Identity
	Cookie    string
	Payload   cookie.Payload
	Refreshed bool
	Err       error
}

// Authenticated reports whether the outcome allows access to private paths.
func (o Outcome) Authenticated() bool {
	return o.Kind == ValidSession
}

// TokenVerifier checks an ID token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*idtoken.Identity, error)
}

// Refresher exchanges a refresh token for new tokens.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (refresh.Tokens, error)
}

// Resolver turns a request into an Outcome. It keeps no state between
// requests and is safe for concurrent use.
type Resolver struct {
	codec     *cookie.Codec
	jar       cookie.Jar
	verifier  TokenVerifier
	refresher Refresher
	window    time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source used for cookie expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Resolver) { s.now = now }
}

// WithRefreshWindow refreshes valid tokens that expire within d.
func WithRefreshWindow(d time.Duration) Option {
	return func(s *Resolver) { s.window = d }
}

// WithLogger overrides the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Resolver) { s.log = l }
}

// NewResolver wires the codec, verifier and refresher together. The cookie
// lifetime comes from jar.MaxAge.
func NewResolver(codec *cookie.Codec, jar cookie.Jar, verifier TokenVerifier, refresher Refresher, opts ...Option) *Resolver {
	s := &Resolver{
		codec:     codec,
		jar:       jar,
		verifier:  verifier,
		refresher: refresher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Logger()
	}
	return s
}

// Resolve reads the session cookie from r. It never panics; anything
// unexpected becomes ErrorState and is logged.
func (s *Resolver) Resolve(ctx context.Context, r *http.Request) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = s.failure(r, fmt.Errorf("panic: %v", rec), "stack", string(debug.Stack()))
		}
	}()

	value, ok := s.jar.Read(r)
	if !ok {
		return Outcome{Kind: NoSession}
	}

	payload, err := s.codec.Verify(value)
	if err != nil {
		return s.reject(r, err)
	}

	id, err := s.verifier.Verify(ctx, payload.IDToken)
	switch {
	case err == nil:
		if s.refresher != nil && s.nearExpiry(id) && payload.RefreshToken != "" {
			out, err := s.refreshSession(ctx, r, payload)
			if err == nil {
				return out
			}
			s.log.Debug("early refresh failed, keeping current token", "uid", id.UID, "error", err)
		}
		return s.renew(r, id, payload, payload.IDToken, payload.RefreshToken, false)
	case errors.Is(err, idtoken.ErrExpiredToken) && payload.RefreshToken != "" && s.refresher != nil:
		out, err := s.refreshSession(ctx, r, payload)
		if err != nil {
			return s.reject(r, err)
		}
		return out
	default:
		return s.reject(r, err)
	}
}

// Issue verifies a freshly obtained ID token and seals a new session cookie
// for it. It is the login path.
func (s *Resolver) Issue(ctx context.Context, idToken, refreshToken string) (Outcome, error) {
	id, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return Outcome{Kind: InvalidSession, Err: err}, err
	}
	now := s.now()
	p := cookie.Payload{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.jar.MaxAge),
	}
	value, err := s.codec.Sign(p)
	if err != nil {
		return Outcome{Kind: ErrorState, Err: err}, fmt.Errorf("sign session cookie: %w", err)
	}
	return Outcome{Kind: ValidSession, Identity: id, Cookie: value, Payload: p}, nil
}

func (s *Resolver) nearExpiry(id *idtoken.Identity) bool {
	return s.window > 0 && id.ExpiresAt.Sub(s.now()) < s.window
}

// refreshSession runs the refresh sub-path and seals a cookie for the new
// tokens. A non-nil error means no new token was obtained.
func (s *Resolver) refreshSession(ctx context.Context, r *http.Request, old cookie.Payload) (Outcome, error) {
	tokens, err := s.refresher.Refresh(ctx, old.RefreshToken)
	if err != nil {
		return Outcome{}, err
	}
	id, err := s.verifier.Verify(ctx, tokens.IDToken)
	if err != nil {
		return Outcome{}, fmt.Errorf("refreshed token: %w", err)
	}
	rt := tokens.RefreshToken
	if rt == "" {
		rt = old.RefreshToken
	}
	return s.renew(r, id, old, tokens.IDToken, rt, true), nil
}

// renew seals a new cookie whose expiry is strictly later than old's.
func (s *Resolver) renew(r *http.Request, id *idtoken.Identity, old cookie.Payload, idToken, refreshToken string, refreshed bool) Outcome {
	now := s.now()
	exp := now.Add(s.jar.MaxAge)
	if !exp.After(old.ExpiresAt) {
		exp = old.ExpiresAt.Add(time.Millisecond)
	}
	p := cookie.Payload{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		IssuedAt:     now,
		ExpiresAt:    exp,
	}
	value, err := s.codec.Sign(p)
	if err != nil {
		return s.failure(r, fmt.Errorf("sign session cookie: %w", err))
	}
	if refreshed {
		s.log.Debug("session refreshed", "uid", id.UID, "path", r.URL.Path)
	}
	return Outcome{Kind: ValidSession, Identity: id, Cookie: value, Payload: p, Refreshed: refreshed}
}

// reject maps a known failure to InvalidSession and anything else to
// ErrorState.
func (s *Resolver) reject(r *http.Request, err error) Outcome {
	if !expected(err) {
		return s.failure(r, err)
	}
	s.log.Debug("session rejected", "reason", err, "path", r.URL.Path, "request_id", r.Header.Get(RequestIDHeader))
	return Outcome{Kind: InvalidSession, Err: err}
}

func (s *Resolver) failure(r *http.Request, err error, extra ...any) Outcome {
	args := append([]any{
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get(RequestIDHeader),
	}, extra...)
	s.log.Error("session resolution failed", args...)
	return Outcome{Kind: ErrorState, Err: err}
}

var expectedErrors = []error{
	cookie.ErrMalformedCookie,
	cookie.ErrInvalidSignature,
	cookie.ErrCookieExpired,
	idtoken.ErrMalformedToken,
	idtoken.ErrInvalidSignature,
	idtoken.ErrExpiredToken,
	idtoken.ErrIssuerMismatch,
	idtoken.ErrNetwork,
	refresh.ErrRefreshFailed,
	refresh.ErrRevoked,
}

func expected(err error) bool {
	for _, target := range expectedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
