package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode selects how federated sign-in works. Password sign-in is always available.
type AuthMode string

const (
	// AuthModePassword disables federated sign-in.
	AuthModePassword AuthMode = "password"
	// AuthModeOAuth enables sign-in through an OIDC provider.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock short-circuits federated sign-in with a fixed identity (development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "password", "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: password, oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/oidc/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig controls the mock federated identity used when AUTH_MODE=mock.
type DevAuthConfig struct {
	Subject  string `env:"SUBJECT"   envDefault:"dev-user"`
	Email    string `env:"EMAIL"     envDefault:"dev@example.org"`
	FullName string `env:"FULL_NAME" envDefault:"Dev User"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Mode AuthMode `env:"AUTH_MODE" envDefault:"password"`

	// JWTSecret signs access tokens (HS256, at least 32 bytes).
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	Issuer    string `env:"AUTH_ISSUER"     envDefault:"institute"`

	AccessTTL     time.Duration `env:"AUTH_ACCESS_TTL"             envDefault:"15m"`
	SessionTTL    time.Duration `env:"AUTH_SESSION_TTL"            envDefault:"168h"`
	ReuseInterval time.Duration `env:"AUTH_REFRESH_REUSE_INTERVAL" envDefault:"10s"`

	// AnonKey is the public key clients present in the apikey header. It grants nothing by itself.
	AnonKey string `env:"AUTH_ANON_KEY"`
	// ServiceRoleKey is the elevated server-only key trusted backends present on the
	// /api/service routes. It must never reach a browser.
	ServiceRoleKey string `env:"AUTH_SERVICE_ROLE_KEY"`

	// RoleHintExpr is a JMESPath expression over {"user_metadata": ...} yielding the
	// lower-trust role hint shown by clients while the profile is unavailable.
	RoleHintExpr string `env:"AUTH_ROLE_HINT_EXPR" envDefault:"user_metadata.role"`

	BcryptCost int `env:"AUTH_BCRYPT_COST" envDefault:"0"`

	// SignInRate is the sustained number of sign-in/sign-up attempts per second per client IP.
	SignInRate  float64 `env:"AUTH_SIGNIN_RATE"  envDefault:"0.2"`
	SignInBurst int     `env:"AUTH_SIGNIN_BURST" envDefault:"5"`

	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize clamps durations and rate limits to usable values.
func (a *AuthConfig) Sanitize() {
	if a.AccessTTL <= 0 {
		a.AccessTTL = 15 * time.Minute
	}
	if a.SessionTTL <= 0 {
		a.SessionTTL = 7 * 24 * time.Hour
	}
	if a.AccessTTL > a.SessionTTL {
		a.AccessTTL = a.SessionTTL
	}
	if a.ReuseInterval < 0 {
		a.ReuseInterval = 0
	}
	if a.SignInRate <= 0 {
		a.SignInRate = 0.2
	}
	if a.SignInBurst < 1 {
		a.SignInBurst = 1
	}
	if strings.TrimSpace(a.RoleHintExpr) == "" {
		a.RoleHintExpr = "user_metadata.role"
	}
}

// Validate checks the settings every mode depends on.
func (a *AuthConfig) Validate(isDev bool) error {
	if len(a.JWTSecret) < 32 {
		return errors.New("AUTH_JWT_SECRET must be at least 32 bytes")
	}
	if strings.TrimSpace(a.AnonKey) == "" {
		return errors.New("AUTH_ANON_KEY is required")
	}
	if a.AnonKey == a.ServiceRoleKey {
		return errors.New("AUTH_ANON_KEY and AUTH_SERVICE_ROLE_KEY must differ")
	}
	switch a.Mode {
	case AuthModeOAuth:
		if a.OAuth.ClientID == "" || a.OAuth.DiscoveryURL == "" {
			return errors.New("AUTH_MODE=oauth requires OAUTH_CLIENT_ID and OAUTH_DISCOVERY_URL")
		}
	case AuthModeMock:
		if !isDev {
			return errors.New("AUTH_MODE=mock is only allowed in development")
		}
	case AuthModePassword, "":
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", a.Mode)
	}
	return nil
}
