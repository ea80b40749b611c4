// Package oidc signs members in through an external OpenID Connect provider.
// Only the subject, email and display name are taken from the provider; roles always
// come from the institute's own profiles table.
package oidc

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/ports"
	"golang.org/x/oauth2"
)

const wellKnownSuffix = "/.well-known/openid-configuration"

var _ ports.AuthProvider = (*Provider)(nil)

// Config describes the registered client at the identity provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scope is space separated. Empty means "openid email profile".
	Scope string
	// DiscoveryURL is the issuer, with or without the well-known suffix.
	DiscoveryURL string
	HTTPClient   *http.Client
}

func (c Config) validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"client id", c.ClientID},
		{"client secret", c.ClientSecret},
		{"redirect url", c.RedirectURL},
		{"discovery url", c.DiscoveryURL},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("oidc: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Provider implements ports.AuthProvider with the authorization code flow.
type Provider struct {
	oauth    oauth2.Config
	op       *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
	client   *http.Client
	openID   bool
}

// NewProvider fetches the discovery document once and builds the provider.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(strings.TrimSuffix(cfg.DiscoveryURL, "/"), wellKnownSuffix)
	op, err := gooidc.NewProvider(gooidc.ClientContext(context.Background(), client), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	scopes := strings.Fields(cfg.Scope)
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email", "profile"}
	}
	openID := false
	for _, s := range scopes {
		if s == gooidc.ScopeOpenID {
			openID = true
		}
	}

	return &Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		op:       op,
		verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		client:   client,
		openID:   openID,
	}, nil
}

// Begin returns the provider URL to send the browser to, with a fresh state and nonce.
// The registered redirect URL is always used; in.RedirectURL only has to be present.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("oidc: redirect url is required")
	}
	state, err := randomToken()
	if err != nil {
		return "", "", "", fmt.Errorf("oidc state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return "", "", "", fmt.Errorf("oidc nonce: %w", err)
	}
	authURL := p.oauth.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange redeems the code, verifies the ID token against in.Nonce and falls back
// to the userinfo endpoint for claims the ID token left out.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error) {
	switch {
	case in.Code == "":
		return domainauth.ExternalIdentity{}, errors.New("oidc: authorization code is required")
	case in.State == "":
		return domainauth.ExternalIdentity{}, errors.New("oidc: state is required")
	case in.Nonce == "":
		return domainauth.ExternalIdentity{}, errors.New("oidc: nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.client)
	tok, err := p.oauth.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.ExternalIdentity{}, fmt.Errorf("oidc token exchange: %w", err)
	}

	var c claims
	if p.openID {
		if c, err = p.idTokenClaims(ctx, tok, in.Nonce); err != nil {
			return domainauth.ExternalIdentity{}, err
		}
	}
	if c.Subject == "" || c.Email == "" {
		info, err := p.op.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if err != nil {
			return domainauth.ExternalIdentity{}, fmt.Errorf("oidc userinfo: %w", err)
		}
		var extra claims
		if err := info.Claims(&extra); err != nil {
			return domainauth.ExternalIdentity{}, fmt.Errorf("oidc userinfo claims: %w", err)
		}
		if err := c.merge(extra); err != nil {
			return domainauth.ExternalIdentity{}, err
		}
	}
	return c.identity()
}

func (p *Provider) idTokenClaims(ctx context.Context, tok *oauth2.Token, nonce string) (claims, error) {
	var c claims
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return c, errors.New("oidc: token response has no id_token")
	}
	idTok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return c, fmt.Errorf("oidc verify id_token: %w", err)
	}
	if idTok.Nonce != nonce {
		return c, errors.New("oidc: id_token nonce mismatch")
	}
	if err := idTok.Claims(&c); err != nil {
		return c, fmt.Errorf("oidc id_token claims: %w", err)
	}
	return c, nil
}

// claims is the subset of ID token and userinfo claims the institute reads.
type claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     *bool  `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// merge fills empty fields from userinfo. A userinfo subject for a different user is rejected.
func (c *claims) merge(o claims) error {
	if c.Subject != "" && o.Subject != "" && c.Subject != o.Subject {
		return errors.New("oidc: userinfo subject does not match id_token")
	}
	if c.Subject == "" {
		c.Subject = o.Subject
	}
	if c.Email == "" {
		c.Email, c.EmailVerified = o.Email, o.EmailVerified
	}
	if c.Name == "" {
		c.Name = o.Name
	}
	if c.PreferredUsername == "" {
		c.PreferredUsername = o.PreferredUsername
	}
	return nil
}

func (c claims) identity() (domainauth.ExternalIdentity, error) {
	if c.Subject == "" || c.Email == "" {
		return domainauth.ExternalIdentity{}, errors.New("oidc: provider did not assert subject and email")
	}
	if c.EmailVerified != nil && !*c.EmailVerified {
		return domainauth.ExternalIdentity{}, errors.New("oidc: provider email is not verified")
	}
	md := map[string]any{"provider": "oidc"}
	if name := cmp.Or(c.Name, c.PreferredUsername); name != "" {
		md["full_name"] = name
	}
	return domainauth.ExternalIdentity{
		Subject:  c.Subject,
		Email:    strings.ToLower(strings.TrimSpace(c.Email)),
		Metadata: md,
	}, nil
}

// randomToken returns 32 URL-safe characters from 24 random bytes.
func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
