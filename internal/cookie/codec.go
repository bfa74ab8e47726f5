// Package cookie seals the session payload into an encrypted, authenticated
// cookie value and opens it again against a rotating key set.
package cookie

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
)

// maxValueLen bounds the cookie value accepted for decoding; browsers cap cookies near 4KB.
const maxValueLen = 4096

var (
	// ErrMalformedCookie is returned when the value is not a decodable session cookie.
	ErrMalformedCookie = errors.New("malformed session cookie")
	// ErrInvalidSignature is returned when no key in the set authenticates the value.
	ErrInvalidSignature = errors.New("session cookie signature invalid")
	// ErrCookieExpired is returned when the payload's expiry has passed.
	ErrCookieExpired = errors.New("session cookie expired")
	// ErrCookieTooLarge is returned by Sign when the sealed value would not
	// survive the browser or Verify.
	ErrCookieTooLarge = errors.New("session cookie too large")
)

// Payload is the data carried by the session cookie.
type Payload struct {
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"iat"`
	ExpiresAt    time.Time `json:"exp"`
}

// Codec signs and verifies session cookie values. It is safe for concurrent use.
type Codec struct {
	keys *KeySet
	now  func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec creates a codec over the given key set.
func NewCodec(keys *KeySet, opts ...Option) *Codec {
	c := &Codec{keys: keys, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sign serializes p and encrypts it with the newest key as a compact JWE.
func (c *Codec) Sign(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal session payload: %w", err)
	}
	sealed, err := jwe.Encrypt(raw,
		jwe.WithKey(jwa.DIRECT, c.keys.newest()),
		jwe.WithContentEncryption(jwa.A256GCM),
		jwe.WithCompact(),
	)
	if err != nil {
		return "", fmt.Errorf("encrypt session payload: %w", err)
	}
	if len(sealed) > maxValueLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCookieTooLarge, len(sealed))
	}
	return string(sealed), nil
}

// Verify opens value with each key from newest to oldest and returns the
// first payload that authenticates. Failures are always one of the package
// errors; Verify does not panic on hostile input.
func (c *Codec) Verify(value string) (p Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = Payload{}, fmt.Errorf("%w: %v", ErrMalformedCookie, r)
		}
	}()

	if value == "" || len(value) > maxValueLen {
		return Payload{}, ErrMalformedCookie
	}
	buf := []byte(value)
	if _, err := jwe.Parse(buf); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedCookie, err)
	}

	var raw []byte
	for _, key := range c.keys.keys {
		plain, err := jwe.Decrypt(buf, jwe.WithKey(jwa.DIRECT, key))
		if err == nil {
			raw = plain
			break
		}
	}
	if raw == nil {
		return Payload{}, ErrInvalidSignature
	}

	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedCookie, err)
	}
	if p.IDToken == "" || p.ExpiresAt.IsZero() {
		return Payload{}, ErrMalformedCookie
	}
	if !p.ExpiresAt.After(c.now()) {
		return Payload{}, ErrCookieExpired
	}
	return p, nil
}
