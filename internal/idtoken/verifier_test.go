package idtoken_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrschumacher/linkdash/internal/idtoken"
	"github.com/jrschumacher/linkdash/internal/testutil"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingKeys struct{}

func (failingKeys) Keys(context.Context) (jwk.Set, error) {
	return nil, errors.New("connection refused")
}

func newVerifier(p *testutil.IdentityProvider, opts ...idtoken.Option) *idtoken.Verifier {
	return idtoken.NewVerifier(idtoken.StaticKeys{Set: p.KeySet()}, idtoken.Config{
		Issuer:    testutil.Issuer,
		Audience:  testutil.ProjectID,
		ClockSkew: 30 * time.Second,
	}, opts...)
}

func TestVerify_ValidToken(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	now := time.Now()
	raw := p.Mint(t, testutil.Claims{
		UID:           "U1",
		Email:         "u1@example.com",
		EmailVerified: true,
		IssuedAt:      now.Add(-time.Minute),
		ExpiresAt:     now.Add(time.Hour),
		Extra:         map[string]any{"role": "admin", "plan": "pro"},
	})

	id, err := newVerifier(p).Verify(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "U1", id.UID)
	assert.Equal(t, "u1@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, testutil.Issuer, id.Issuer)
	assert.Equal(t, testutil.ProjectID, id.Audience)
	assert.Equal(t, now.Add(time.Hour).Unix(), id.ExpiresAt.Unix())
	assert.False(t, id.AuthTime.IsZero())
	assert.Equal(t, map[string]any{"role": "admin", "plan": "pro"}, id.CustomClaims)
}

func TestVerify_Failures(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	foreign := testutil.NewSigningKey(t, "test-key-1")
	now := time.Now()
	valid := testutil.Claims{UID: "U1", IssuedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)}

	with := func(mod func(*testutil.Claims)) testutil.Claims {
		c := valid
		mod(&c)
		return c
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", idtoken.ErrMalformedToken},
		{"garbage", "not.a.jwt", idtoken.ErrMalformedToken},
		{"expired", p.ExpiredToken(t, "U1"), idtoken.ErrExpiredToken},
		{"future iat", p.Mint(t, with(func(c *testutil.Claims) { c.IssuedAt = now.Add(time.Hour) })), idtoken.ErrMalformedToken},
		{"unpublished key", testutil.MintWithKey(t, foreign, valid), idtoken.ErrInvalidSignature},
		{"wrong issuer", p.Mint(t, with(func(c *testutil.Claims) { c.Issuer = "https://evil.example.com" })), idtoken.ErrIssuerMismatch},
		{"wrong audience", p.Mint(t, with(func(c *testutil.Claims) { c.Audience = "other-project" })), idtoken.ErrIssuerMismatch},
		{"empty subject", p.Mint(t, with(func(c *testutil.Claims) { c.UID = "" })), idtoken.ErrMalformedToken},
		// Signature is checked before expiry, expiry before issuer.
		{"expired foreign", testutil.MintWithKey(t, foreign, with(func(c *testutil.Claims) { c.ExpiresAt = now.Add(-time.Hour) })), idtoken.ErrInvalidSignature},
		{"expired wrong issuer", p.Mint(t, with(func(c *testutil.Claims) {
			c.ExpiresAt = now.Add(-time.Hour)
			c.Issuer = "https://evil.example.com"
		})), idtoken.ErrExpiredToken},
	}

	v := newVerifier(p)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(context.Background(), tt.token)
			assert.Nil(t, id)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerify_UnsignedTokenRejected(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	unsigned := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJVMSIsImlzcyI6Imh0dHBzOi8vc2VjdXJldG9rZW4uZ29vZ2xlLmNvbS9saW5rZGFzaC10ZXN0In0."

	_, err := newVerifier(p).Verify(context.Background(), unsigned)
	require.Error(t, err)
	assert.True(t, errors.Is(err, idtoken.ErrMalformedToken) || errors.Is(err, idtoken.ErrInvalidSignature), "got %v", err)
}

func TestVerify_ClockSkewTolerance(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	now := time.Now()
	raw := p.Mint(t, testutil.Claims{UID: "U1", IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-10 * time.Second)})

	_, err := newVerifier(p).Verify(context.Background(), raw)
	assert.NoError(t, err, "token expired within the skew is accepted")

	later := idtoken.WithClock(func() time.Time { return now.Add(time.Minute) })
	_, err = newVerifier(p, later).Verify(context.Background(), raw)
	assert.ErrorIs(t, err, idtoken.ErrExpiredToken)
}

func TestVerify_KeyFetchFailureIsNetworkError(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	v := idtoken.NewVerifier(failingKeys{}, idtoken.Config{Issuer: testutil.Issuer, Audience: testutil.ProjectID})

	_, err := v.Verify(context.Background(), p.ValidToken(t, "U1"))
	assert.ErrorIs(t, err, idtoken.ErrNetwork)
	assert.ErrorIs(t, v.Warmup(context.Background()), idtoken.ErrNetwork)
}

func TestRemoteKeys_CachesJWKS(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys, err := idtoken.NewRemoteKeys(ctx, p.JWKSURL(), time.Hour, nil)
	require.NoError(t, err)
	v := idtoken.NewVerifier(keys, idtoken.Config{Issuer: testutil.Issuer, Audience: testutil.ProjectID})

	require.NoError(t, v.Warmup(ctx))
	for i := 0; i < 3; i++ {
		id, err := v.Verify(ctx, p.ValidToken(t, "U1"))
		require.NoError(t, err)
		assert.Equal(t, "U1", id.UID)
	}
	assert.Equal(t, 1, p.JWKSCalls())
}

func TestRemoteKeys_UnreachableProvider(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	token := p.ValidToken(t, "U1")
	url := p.JWKSURL()
	p.Server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keys, err := idtoken.NewRemoteKeys(ctx, url, time.Hour, nil)
	require.NoError(t, err)
	v := idtoken.NewVerifier(keys, idtoken.Config{
		Issuer:       testutil.Issuer,
		Audience:     testutil.ProjectID,
		FetchTimeout: time.Second,
	})

	_, err = v.Verify(ctx, token)
	assert.ErrorIs(t, err, idtoken.ErrNetwork)
}
