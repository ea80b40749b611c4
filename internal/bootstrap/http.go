package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/institute-web/config"
	httpx "github.com/target/institute-web/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// BuildRouterServices maps the service container and HTTP settings onto the router.
func BuildRouterServices(cfg *HTTPServerConfig) httpx.RouterServices {
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	svc := cfg.Services

	rs := httpx.RouterServices{
		Auth:     svc.Auth,
		Gate:     svc.Gate,
		Roles:    svc.Roles,
		Profiles: svc.Profiles,
		Archive:  svc.Archive,
		Books:    svc.Books,
		Gallery:  svc.Gallery,
		Cookies: httpx.CookieConfig{
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.HTTP.CookieSecure || !appCfg.IsDev,
		},
		AnonKey:         appCfg.Auth.AnonKey,
		ServiceKey:      appCfg.Auth.ServiceRoleKey,
		SignIn:          httpx.NewRateLimiter(appCfg.Auth.SignInRate, appCfg.Auth.SignInBurst),
		OIDCEnabled:     FederatedEnabled(appCfg.Auth),
		OIDCRedirectURL: appCfg.Auth.OAuth.RedirectURL,
		EventsHeartbeat: appCfg.HTTP.EventsHeartbeat,
		MaxUploadBytes:  appCfg.HTTP.MaxUploadBytes,
		Metrics:         svc.Metrics,
		Logger:          cfg.Logger,
	}
	// Assigning a nil *UploadService would register the route with a typed-nil uploader.
	if svc.Uploads != nil {
		rs.Uploads = svc.Uploads
	}
	if svc.Registry != nil {
		rs.Gatherer = svc.Registry
	}
	return rs
}

// NewHTTPServer builds the server without starting it.
func NewHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil || cfg.Services == nil {
		return nil, errors.New("http server requires services")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	// No WriteTimeout: /auth/events holds responses open for the life of the stream.
	return &http.Server{
		Addr:              addr,
		Handler:           httpx.NewRouter(BuildRouterServices(cfg)),
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

// ServeHTTP runs server until ctx is canceled, then drains it within shutdownTimeout.
func ServeHTTP(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}

	// Shutdown waits for active connections, and event streams never go idle on their own.
	// Canceling the base context at shutdown ends them.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	server.BaseContext = func(net.Listener) context.Context { return baseCtx }
	server.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return <-errCh
}
