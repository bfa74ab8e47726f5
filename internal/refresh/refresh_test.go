package refresh_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/refresh"
	"github.com/jrschumacher/linkdash/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	revoked map[string]bool
	err     error
}

func (s stubChecker) IsRevoked(_ context.Context, uid string) (bool, error) {
	return s.revoked[uid], s.err
}

func newCoordinator(t *testing.T, p *testutil.IdentityProvider, opts ...refresh.Option) *refresh.Coordinator {
	t.Helper()
	c, err := refresh.NewCoordinator(refresh.Config{
		TokenURL: p.TokenURL(),
		APIKey:   testutil.APIKey,
		Timeout:  2 * time.Second,
		Backoff:  10 * time.Millisecond,
	}, opts...)
	require.NoError(t, err)
	return c
}

func TestRefresh_Success(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")

	tokens, err := newCoordinator(t, p).Refresh(context.Background(), rt)
	require.NoError(t, err)

	assert.Equal(t, 1, p.TokenCalls())
	assert.NotEmpty(t, tokens.IDToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.NotEqual(t, rt, tokens.RefreshToken)
	assert.Equal(t, "U1", tokens.UID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tokens.ExpiresAt, time.Minute)
}

func TestRefresh_RetriesOnceAfterDroppedConnection(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")
	p.DropConnections(1)

	tokens, err := newCoordinator(t, p).Refresh(context.Background(), rt)
	require.NoError(t, err)
	assert.Equal(t, "U1", tokens.UID)
	assert.Equal(t, 2, p.TokenCalls())
}

func TestRefresh_GivesUpAfterOneRetry(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")
	p.DropConnections(5)

	_, err := newCoordinator(t, p).Refresh(context.Background(), rt)
	require.Error(t, err)
	assert.ErrorIs(t, err, refresh.ErrRefreshFailed)
	assert.ErrorIs(t, err, refresh.ErrNetwork)
	assert.Equal(t, 2, p.TokenCalls())
}

func TestRefresh_RetriesUnavailableProvider(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")
	p.ForceTokenStatus(http.StatusServiceUnavailable)

	_, err := newCoordinator(t, p).Refresh(context.Background(), rt)
	assert.ErrorIs(t, err, refresh.ErrRefreshFailed)
	assert.Equal(t, 2, p.TokenCalls())
}

func TestRefresh_RejectedTokenIsNotRetried(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")
	p.RevokeRefreshToken(rt)

	_, err := newCoordinator(t, p).Refresh(context.Background(), rt)
	require.Error(t, err)
	assert.ErrorIs(t, err, refresh.ErrRefreshFailed)
	assert.False(t, errors.Is(err, refresh.ErrNetwork))
	assert.Equal(t, 1, p.TokenCalls())
}

func TestRefresh_EmptyToken(t *testing.T) {
	p := testutil.NewIdentityProvider(t)

	_, err := newCoordinator(t, p).Refresh(context.Background(), "")
	assert.ErrorIs(t, err, refresh.ErrRefreshFailed)
	assert.Zero(t, p.TokenCalls())
}

func TestRefresh_WrongAPIKey(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")

	c, err := refresh.NewCoordinator(refresh.Config{TokenURL: p.TokenURL(), APIKey: "wrong"})
	require.NoError(t, err)
	_, err = c.Refresh(context.Background(), rt)
	assert.ErrorIs(t, err, refresh.ErrRefreshFailed)
}

func TestRefresh_APIKeyNeverLeaks(t *testing.T) {
	const key = "SUPERSECRETKEY"
	var buf bytes.Buffer
	prev := logger.Logger()
	logger.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { logger.SetLogger(prev) })

	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")
	tokenURL := p.TokenURL()
	p.Server.Close()

	c, err := refresh.NewCoordinator(refresh.Config{
		TokenURL: tokenURL,
		APIKey:   key,
		Timeout:  2 * time.Second,
		Backoff:  10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = c.Refresh(context.Background(), rt)
	require.Error(t, err)
	assert.ErrorIs(t, err, refresh.ErrNetwork)
	assert.NotContains(t, err.Error(), key)
	assert.NotEmpty(t, buf.String())
	assert.NotContains(t, buf.String(), key)
}

func TestRefresh_CancelledContext(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCoordinator(t, p).Refresh(ctx, rt)
	assert.ErrorIs(t, err, refresh.ErrRefreshFailed)
}

func TestRefresh_ConcurrentRefreshesAreIndependent(t *testing.T) {
	p := testutil.NewIdentityProvider(t)
	rt := p.IssueRefreshToken("U1")
	c := newCoordinator(t, p)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Refresh(context.Background(), rt)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, len(errs), p.TokenCalls())
}

func TestRefresh_Revocation(t *testing.T) {
	p := testutil.NewIdentityProvider(t)

	t.Run("revoked user", func(t *testing.T) {
		c := newCoordinator(t, p, refresh.WithRevocation(stubChecker{revoked: map[string]bool{"U1": true}}))
		_, err := c.Refresh(context.Background(), p.IssueRefreshToken("U1"))
		assert.ErrorIs(t, err, refresh.ErrRevoked)
	})

	t.Run("other user", func(t *testing.T) {
		c := newCoordinator(t, p, refresh.WithRevocation(stubChecker{revoked: map[string]bool{"U1": true}}))
		tokens, err := c.Refresh(context.Background(), p.IssueRefreshToken("U2"))
		require.NoError(t, err)
		assert.Equal(t, "U2", tokens.UID)
	})

	t.Run("checker unavailable fails closed", func(t *testing.T) {
		c := newCoordinator(t, p, refresh.WithRevocation(stubChecker{err: errors.New("redis down")}))
		_, err := c.Refresh(context.Background(), p.IssueRefreshToken("U1"))
		assert.ErrorIs(t, err, refresh.ErrRefreshFailed)
	})
}

func TestNewCoordinator_InvalidURL(t *testing.T) {
	_, err := refresh.NewCoordinator(refresh.Config{TokenURL: "not a url"})
	assert.Error(t, err)
}
