package idtoken

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySource supplies the identity provider's current public signing keys.
type KeySource interface {
	Keys(ctx context.Context) (jwk.Set, error)
}

// RemoteKeys is a KeySource backed by a jwk.Cache that re-fetches the JWKS
// document in the background every refresh interval.
type RemoteKeys struct {
	cache *jwk.Cache
	url   string
}

// NewRemoteKeys registers url with a new JWKS cache. The cache's background
// refresh stops when ctx is cancelled.
func NewRemoteKeys(ctx context.Context, url string, refresh time.Duration, client *http.Client) (*RemoteKeys, error) {
	if client == nil {
		client = http.DefaultClient
	}
	cache := jwk.NewCache(ctx)
	if err := cache.Register(url,
		jwk.WithRefreshInterval(refresh),
		jwk.WithHTTPClient(client),
	); err != nil {
		return nil, fmt.Errorf("register JWKS %s: %w", url, err)
	}
	return &RemoteKeys{cache: cache, url: url}, nil
}

// Keys returns the cached key set, fetching it on first use.
func (k *RemoteKeys) Keys(ctx context.Context) (jwk.Set, error) {
	set, err := k.cache.Get(ctx, k.url)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", k.url, err)
	}
	return set, nil
}

// StaticKeys is a fixed KeySource.
type StaticKeys struct {
	Set jwk.Set
}

// Keys returns the fixed set.
func (k StaticKeys) Keys(context.Context) (jwk.Set, error) {
	return k.Set, nil
}
