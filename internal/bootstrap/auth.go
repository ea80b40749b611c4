package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/institute-web/config"
	"github.com/target/institute-web/internal/adapters/authroles"
	"github.com/target/institute-web/internal/adapters/devauth"
	"github.com/target/institute-web/internal/adapters/jwtcodec"
	"github.com/target/institute-web/internal/adapters/oidc"
	redisadapter "github.com/target/institute-web/internal/adapters/redis"
	"github.com/target/institute-web/internal/core"
	"github.com/target/institute-web/internal/data/cryptoutil"
	"github.com/target/institute-web/internal/observability/metrics"
	"github.com/target/institute-web/internal/ports"
	"github.com/target/institute-web/internal/service"
)

// AuthConfig contains configuration for the auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	Redis       config.RedisConfig
	RedisClient redis.UniversalClient
	Identities  core.IdentityRepository
	// Profiles must be the elevated profile store.
	Profiles core.ProfileRepository
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// AuthComponents is the auth service plus the event bus it publishes on.
// The role service shares the same bus.
type AuthComponents struct {
	Service *service.AuthService
	Events  *redisadapter.SessionEvents
}

// BuildAuthService wires the session store, token codec, hasher and federated provider
// for the configured mode. Password sign-in is available in every mode.
func BuildAuthService(cfg AuthConfig) (*AuthComponents, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("auth service requires a redis client")
	}
	if cfg.Identities == nil || cfg.Profiles == nil {
		return nil, errors.New("auth service requires identity and profile stores")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := jwtcodec.New(jwtcodec.Config{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer})
	if err != nil {
		return nil, fmt.Errorf("build token codec: %w", err)
	}
	hasher, err := cryptoutil.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("build password hasher: %w", err)
	}
	hints, err := authroles.NewHintExtractor(cfg.Auth.RoleHintExpr)
	if err != nil {
		return nil, err
	}
	provider, err := BuildAuthProvider(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	events := redisadapter.NewSessionEvents(redisadapter.SessionEventsOptions{
		Client:  cfg.RedisClient,
		Channel: cfg.Redis.EventsChannel,
		Metrics: cfg.Metrics,
		Logger:  logger,
	})

	reuse := cfg.Auth.ReuseInterval
	if reuse == 0 {
		reuse = -1
	}

	svc := service.NewAuthService(service.AuthServiceOptions{
		Identities:    cfg.Identities,
		Profiles:      cfg.Profiles,
		Sessions:      redisadapter.NewSessionStore(cfg.RedisClient, redisadapter.WithPrefix(cfg.Redis.SessionPrefix)),
		Events:        events,
		Tokens:        tokens,
		Hasher:        hasher,
		Provider:      provider,
		RoleHint:      hints.Extract,
		AccessTTL:     cfg.Auth.AccessTTL,
		SessionTTL:    cfg.Auth.SessionTTL,
		ReuseInterval: reuse,
		Logger:        logger,
	})
	return &AuthComponents{Service: svc, Events: events}, nil
}

// BuildAuthProvider returns the federated sign-in provider for the mode, or nil for
// password-only deployments.
//
//nolint:ireturn // the provider is chosen at runtime.
func BuildAuthProvider(cfg config.AuthConfig, logger *slog.Logger) (ports.AuthProvider, error) {
	switch cfg.Mode {
	case config.AuthModeOAuth:
		oauth := cfg.OAuth
		prov, err := oidc.NewProvider(oidc.Config{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		})
		if err != nil {
			return nil, fmt.Errorf("build oidc provider: %w", err)
		}
		return prov, nil

	case config.AuthModeMock:
		if logger != nil {
			logger.Warn("mock federated sign-in enabled", "subject", cfg.DevAuth.Subject)
		}
		prov, err := devauth.NewProvider(devauth.Config{
			Subject:  cfg.DevAuth.Subject,
			Email:    cfg.DevAuth.Email,
			Metadata: map[string]any{"full_name": cfg.DevAuth.FullName},
		})
		if err != nil {
			return nil, fmt.Errorf("build dev auth provider: %w", err)
		}
		return prov, nil

	default:
		return nil, nil
	}
}

// FederatedEnabled reports whether the OIDC routes should be registered.
func FederatedEnabled(cfg config.AuthConfig) bool {
	return cfg.Mode == config.AuthModeOAuth || cfg.Mode == config.AuthModeMock
}
