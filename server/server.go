// Package server assembles the gateway and every route group into one
// HTTP handler and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrschumacher/linkdash/internal/backend"
	"github.com/jrschumacher/linkdash/internal/config"
	"github.com/jrschumacher/linkdash/internal/content"
	"github.com/jrschumacher/linkdash/internal/cookie"
	"github.com/jrschumacher/linkdash/internal/httputil"
	"github.com/jrschumacher/linkdash/internal/idtoken"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/middleware"
	"github.com/jrschumacher/linkdash/internal/refresh"
	"github.com/jrschumacher/linkdash/internal/revocation"
	"github.com/jrschumacher/linkdash/internal/routes"
	"github.com/jrschumacher/linkdash/internal/session"
	api "github.com/jrschumacher/linkdash/server/api-handlers"
	"github.com/jrschumacher/linkdash/server/app"
	auth "github.com/jrschumacher/linkdash/server/auth-handlers"
	health "github.com/jrschumacher/linkdash/server/health-handlers"
)

const shutdownTimeout = 10 * time.Second

// Server is the assembled application.
type Server struct {
	Handler http.Handler
	closers []func() error
}

// Build creates every collaborator from cfg. assets holds the static/ and
// content/ trees. Background work such as the JWKS refresh stops when ctx
// is cancelled.
func Build(ctx context.Context, cfg *config.Config, assets fs.FS) (*Server, error) {
	srv := &Server{}

	keys, err := cookie.NewKeySet(cfg.CookieSignatureKeys)
	if err != nil {
		return nil, err
	}
	codec := cookie.NewCodec(keys)
	jar := cookie.Jar{Name: cfg.CookieName, MaxAge: cfg.CookieMaxAge, Secure: cfg.UseSecureCookies}

	jwksClient := httputil.NewRetryClient(httputil.RetryOptions{
		RetryMax: 1,
		Backoff:  cfg.RefreshBackoff,
		Timeout:  cfg.HTTPTimeout,
	})
	remoteKeys, err := idtoken.NewRemoteKeys(ctx, cfg.JWKSURL, cfg.JWKSRefreshInterval, jwksClient)
	if err != nil {
		return nil, err
	}
	verifier := idtoken.NewVerifier(remoteKeys, idtoken.Config{
		Issuer:       cfg.Issuer(),
		Audience:     cfg.IdentityProjectID,
		ClockSkew:    cfg.TokenClockSkew,
		FetchTimeout: cfg.HTTPTimeout,
	})

	checks := map[string]health.Check{"jwks": verifier.Warmup}

	var refreshOpts []refresh.Option
	if cfg.RedisURL != "" {
		store, err := revocation.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("revocation list: %w", err)
		}
		srv.closers = append(srv.closers, store.Close)
		refreshOpts = append(refreshOpts, refresh.WithRevocation(store))
		checks["redis"] = store.Ping
	}
	coordinator, err := refresh.NewCoordinator(refresh.Config{
		TokenURL: cfg.TokenURL,
		APIKey:   cfg.IdentityAPIKey,
		Timeout:  cfg.RefreshTimeout,
		Backoff:  cfg.RefreshBackoff,
	}, refreshOpts...)
	if err != nil {
		return nil, err
	}

	resolver := session.NewResolver(codec, jar, verifier, coordinator,
		session.WithRefreshWindow(cfg.RefreshWindow),
		session.WithLogger(logger.Logger()),
	)

	table, err := routes.New(cfg.PublicPaths, cfg.PrivatePaths, cfg.GuestOnlyPaths)
	if err != nil {
		return nil, err
	}

	client, err := backend.New(cfg.BackendAPIURL, backend.Options{
		Timeout:  cfg.HTTPTimeout,
		RetryMax: 1,
		Backoff:  cfg.RefreshBackoff,
	})
	if err != nil {
		return nil, err
	}
	checks["backend"] = client.Ping

	docsFS, err := fs.Sub(assets, "content")
	if err != nil {
		return nil, err
	}
	docs, err := content.Load(docsFS)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	staticFS, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	health.RegisterRoutes(mux, "", cfg, checks)
	auth.RegisterRoutes(mux, "", cfg, resolver, jar)
	api.RegisterRoutes(mux, "/api", cfg, client)
	app.RegisterRoutes(mux, cfg, docs, client, staticFS)

	srv.Handler = middleware.NewChain(
		middleware.RequestID,
		middleware.Logging,
		middleware.Recovery,
		middleware.Gateway(middleware.GatewayConfig{
			Routes:   table,
			Sessions: resolver,
			Jar:      jar,
		}),
	).Then(mux)

	return srv, nil
}

// Close releases connections held by the server's collaborators.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Start builds the server and serves until SIGINT or SIGTERM, then drains
// in-flight requests.
func Start(cfg *config.Config, assets fs.FS) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := Build(ctx, cfg, assets)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("Failed to close resources", "error", err)
		}
	}()

	displayAppName(cfg.AppName)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", httpServer.Addr, "env", cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func displayAppName(name string) {
	figure.NewFigure(name, "cybermedium", true).Print()
	fmt.Println()
}
