// Package devauth stands in for the identity provider in local development. Begin
// sends the browser straight to the callback and Exchange asserts one configured
// identity, so the federated sign-in path runs without an external IdP.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"maps"
	"net/url"
	"strings"

	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/ports"
)

const (
	// CallbackPath is where the institute's router completes federated sign-in.
	CallbackPath = "/auth/oidc/callback"
	devCode      = "dev"
)

var _ ports.AuthProvider = (*Provider)(nil)

// Config is the identity every dev sign-in asserts. Metadata may carry a role hint,
// which lets the stale-hint path be exercised locally.
type Config struct {
	Subject  string
	Email    string
	Metadata map[string]any
}

// Provider implements ports.AuthProvider without leaving the process.
type Provider struct {
	identity domainauth.ExternalIdentity
}

// NewProvider requires Subject and Email.
func NewProvider(cfg Config) (*Provider, error) {
	switch {
	case strings.TrimSpace(cfg.Subject) == "":
		return nil, errors.New("dev auth: subject is required")
	case strings.TrimSpace(cfg.Email) == "":
		return nil, errors.New("dev auth: email is required")
	}
	md := map[string]any{"provider": "dev"}
	maps.Copy(md, cfg.Metadata)
	return &Provider{identity: domainauth.ExternalIdentity{
		Subject:  cfg.Subject,
		Email:    strings.ToLower(strings.TrimSpace(cfg.Email)),
		Metadata: md,
	}}, nil
}

func (p *Provider) Begin(context.Context, ports.BeginInput) (string, string, string, error) {
	state, err := token()
	if err != nil {
		return "", "", "", err
	}
	nonce, err := token()
	if err != nil {
		return "", "", "", err
	}
	q := url.Values{"code": {devCode}, "state": {state}}
	return CallbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange accepts only the code Begin issued. State and nonce are checked by the handler.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error) {
	if in.Code != devCode {
		return domainauth.ExternalIdentity{}, errors.New("dev auth: unknown authorization code")
	}
	id := p.identity
	id.Metadata = maps.Clone(p.identity.Metadata)
	return id, nil
}

func token() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
