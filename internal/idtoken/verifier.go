// Package idtoken verifies identity-provider ID tokens and decodes them into
// an Identity.
package idtoken

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// maxUIDLength matches the provider's limit on the sub claim.
const maxUIDLength = 128

// reservedClaims are provider claims surfaced as Identity fields or dropped;
// everything else lands in Identity.CustomClaims.
var reservedClaims = map[string]struct{}{
	"email":          {},
	"email_verified": {},
	"auth_time":      {},
	"user_id":        {},
	"firebase":       {},
	"name":           {},
	"picture":        {},
	"phone_number":   {},
}

// Identity is the verified content of an ID token.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	CustomClaims  map[string]any
	Issuer        string
	Audience      string
	AuthTime      time.Time
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Config identifies the project whose tokens are accepted.
type Config struct {
	Issuer       string
	Audience     string
	ClockSkew    time.Duration
	FetchTimeout time.Duration
}

// Verifier checks ID tokens against the provider's keys. It holds no
// per-request state and is safe for concurrent use.
type Verifier struct {
	keys KeySource
	cfg  Config
	now  func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the time source used for exp/iat checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier reading keys from keys.
func NewVerifier(keys KeySource, cfg Config, opts ...Option) *Verifier {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	v := &Verifier{keys: keys, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks, in order, token structure, signature, exp/iat and iss/aud,
// and stops at the first failure.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, ErrMalformedToken
	}
	buf := []byte(raw)

	tok, err := jwt.Parse(buf, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, v.cfg.FetchTimeout)
	defer cancel()
	set, err := v.keys.Keys(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if _, err := jws.Verify(buf, jws.WithKeySet(set, jws.WithInferAlgorithmFromKey(true))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	now := v.now()
	exp, iat := tok.Expiration(), tok.IssuedAt()
	if exp.IsZero() || iat.IsZero() {
		return nil, fmt.Errorf("%w: missing exp or iat", ErrMalformedToken)
	}
	if !now.Before(exp.Add(v.cfg.ClockSkew)) {
		return nil, fmt.Errorf("%w: expired at %s", ErrExpiredToken, exp.UTC().Format(time.RFC3339))
	}
	if iat.After(now.Add(v.cfg.ClockSkew)) {
		return nil, fmt.Errorf("%w: issued in the future", ErrMalformedToken)
	}

	if tok.Issuer() != v.cfg.Issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrIssuerMismatch, tok.Issuer())
	}
	if !slices.Contains(tok.Audience(), v.cfg.Audience) {
		return nil, fmt.Errorf("%w: unexpected audience %v", ErrIssuerMismatch, tok.Audience())
	}

	sub := tok.Subject()
	if sub == "" || len(sub) > maxUIDLength {
		return nil, fmt.Errorf("%w: invalid subject", ErrMalformedToken)
	}

	return identityFromToken(tok), nil
}

// Warmup fetches the provider keys so the first request does not pay for it.
func (v *Verifier) Warmup(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, v.cfg.FetchTimeout)
	defer cancel()
	if _, err := v.keys.Keys(fetchCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil
}

func identityFromToken(tok jwt.Token) *Identity {
	id := &Identity{
		UID:          tok.Subject(),
		Issuer:       tok.Issuer(),
		IssuedAt:     tok.IssuedAt(),
		ExpiresAt:    tok.Expiration(),
		CustomClaims: map[string]any{},
	}
	if aud := tok.Audience(); len(aud) > 0 {
		id.Audience = aud[0]
	}

	for name, value := range tok.PrivateClaims() {
		switch name {
		case "email":
			id.Email, _ = value.(string)
		case "email_verified":
			id.EmailVerified, _ = value.(bool)
		case "auth_time":
			if secs, ok := value.(float64); ok {
				id.AuthTime = time.Unix(int64(secs), 0).UTC()
			}
		}
		if _, reserved := reservedClaims[name]; !reserved {
			id.CustomClaims[name] = value
		}
	}
	return id
}
