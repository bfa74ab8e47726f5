// Package testutil provides shared fixtures for package tests: an in-process
// identity provider that publishes a JWKS, mints ID tokens and answers
// refresh-token grants.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	// ProjectID is the audience of every token minted by the test provider.
	ProjectID = "linkdash-test"
	// Issuer is the issuer of every token minted by the test provider.
	Issuer = "https://securetoken.google.com/" + ProjectID
	// APIKey is the key the token endpoint expects in the X-Goog-Api-Key header.
	APIKey = "test-api-key"
)

// TestServer creates a test HTTP server closed at the end of the test.
func TestServer(t testing.TB, handler http.Handler) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
	})

	return server
}

// NewSigningKey generates an RS256 private JWK with the given key ID.
func NewSigningKey(t testing.TB, kid string) jwk.Key {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("wrap RSA key: %v", err)
	}
	_ = key.Set(jwk.KeyIDKey, kid)
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
	return key
}

// Claims describes a token to mint. Zero Issuer/Audience use the provider defaults.
type Claims struct {
	UID           string
	Email         string
	EmailVerified bool
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Issuer        string
	Audience      string
	Extra         map[string]any
}

// IdentityProvider is an httptest-backed stand-in for the upstream identity provider.
type IdentityProvider struct {
	Server *httptest.Server

	signingKey jwk.Key
	publicSet  jwk.Set

	mu            sync.Mutex
	refreshTokens map[string]string
	dropNext      int
	forcedStatus  int
	tokenCalls    int
	jwksCalls     int
}

// NewIdentityProvider starts a provider serving /jwks and /token.
func NewIdentityProvider(t testing.TB) *IdentityProvider {
	t.Helper()

	key := NewSigningKey(t, "test-key-1")
	pub, err := key.PublicKey()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("add key: %v", err)
	}

	p := &IdentityProvider{
		signingKey:    key,
		publicSet:     set,
		refreshTokens: map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/jwks", p.handleJWKS)
	mux.HandleFunc("/token", p.handleToken)
	p.Server = TestServer(t, mux)
	return p
}

// JWKSURL is the provider's key set endpoint.
func (p *IdentityProvider) JWKSURL() string { return p.Server.URL + "/jwks" }

// TokenURL is the provider's refresh-token endpoint.
func (p *IdentityProvider) TokenURL() string { return p.Server.URL + "/token" }

// KeySet returns the published public keys.
func (p *IdentityProvider) KeySet() jwk.Set { return p.publicSet }

// Mint signs a token with the provider key.
func (p *IdentityProvider) Mint(t testing.TB, c Claims) string {
	t.Helper()
	return MintWithKey(t, p.signingKey, c)
}

// ValidToken mints a token for uid that expires in an hour.
func (p *IdentityProvider) ValidToken(t testing.TB, uid string) string {
	t.Helper()
	now := time.Now()
	return p.Mint(t, Claims{UID: uid, Email: uid + "@example.com", EmailVerified: true, IssuedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)})
}

// ExpiredToken mints a correctly signed token for uid that expired an hour ago.
func (p *IdentityProvider) ExpiredToken(t testing.TB, uid string) string {
	t.Helper()
	now := time.Now()
	return p.Mint(t, Claims{UID: uid, Email: uid + "@example.com", EmailVerified: true, IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)})
}

// IssueRefreshToken registers a refresh token for uid.
func (p *IdentityProvider) IssueRefreshToken(uid string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	rt := "rt-" + hex.EncodeToString(buf)
	p.mu.Lock()
	p.refreshTokens[rt] = uid
	p.mu.Unlock()
	return rt
}

// RevokeRefreshToken makes rt unusable.
func (p *IdentityProvider) RevokeRefreshToken(rt string) {
	p.mu.Lock()
	delete(p.refreshTokens, rt)
	p.mu.Unlock()
}

// DropConnections makes the next n token requests fail at the transport level.
func (p *IdentityProvider) DropConnections(n int) {
	p.mu.Lock()
	p.dropNext = n
	p.mu.Unlock()
}

// ForceTokenStatus makes every token request answer with status; 0 restores normal behaviour.
func (p *IdentityProvider) ForceTokenStatus(status int) {
	p.mu.Lock()
	p.forcedStatus = status
	p.mu.Unlock()
}

// TokenCalls reports how many requests reached the token endpoint.
func (p *IdentityProvider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

// JWKSCalls reports how many requests reached the JWKS endpoint.
func (p *IdentityProvider) JWKSCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jwksCalls
}

func (p *IdentityProvider) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	p.jwksCalls++
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p.publicSet)
}

func (p *IdentityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.tokenCalls++
	drop := p.dropNext > 0
	if drop {
		p.dropNext--
	}
	status := p.forcedStatus
	p.mu.Unlock()

	if drop {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
	}
	if status != 0 {
		writeTokenError(w, status, "forced_failure")
		return
	}

	if r.Method != http.MethodPost || r.Header.Get("X-Goog-Api-Key") != APIKey {
		writeTokenError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	rt := r.PostForm.Get("refresh_token")
	p.mu.Lock()
	uid, ok := p.refreshTokens[rt]
	p.mu.Unlock()
	if !ok {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	now := time.Now()
	idToken, err := signClaims(p.signingKey, Claims{UID: uid, Email: uid + "@example.com", EmailVerified: true, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		writeTokenError(w, http.StatusInternalServerError, "server_error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  idToken,
		"id_token":      idToken,
		"refresh_token": p.IssueRefreshToken(uid),
		"expires_in":    3600,
		"token_type":    "Bearer",
		"user_id":       uid,
	})
}

func writeTokenError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// MintWithKey signs a token with an arbitrary key, e.g. one the provider never published.
func MintWithKey(t testing.TB, key jwk.Key, c Claims) string {
	t.Helper()
	signed, err := signClaims(key, c)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return signed
}

func signClaims(key jwk.Key, c Claims) (string, error) {
	iss := c.Issuer
	if iss == "" {
		iss = Issuer
	}
	aud := c.Audience
	if aud == "" {
		aud = ProjectID
	}
	b := jwt.NewBuilder().
		Issuer(iss).
		Audience([]string{aud}).
		Subject(c.UID).
		IssuedAt(c.IssuedAt).
		Expiration(c.ExpiresAt).
		Claim("auth_time", c.IssuedAt.Unix()).
		Claim("user_id", c.UID)
	if c.Email != "" {
		b = b.Claim("email", c.Email).Claim("email_verified", c.EmailVerified)
	}
	for k, v := range c.Extra {
		b = b.Claim(k, v)
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
