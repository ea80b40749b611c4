// Package jwtcodec issues and verifies HS256 access tokens carried in the access cookie.
package jwtcodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/ports"
)

// Config groups codec settings.
type Config struct {
	Secret []byte
	Issuer string
	// Now overrides the clock; tests only.
	Now func() time.Time
}

// Codec implements ports.TokenCodec with golang-jwt.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ ports.TokenCodec = (*Codec)(nil)

type accessClaims struct {
	Email        string         `json:"email,omitempty"`
	SessionID    string         `json:"sid"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// New constructs a Codec. The secret must be at least 32 bytes.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: cfg.Secret, issuer: cfg.Issuer, now: now}, nil
}

// Issue signs claims into a compact token.
func (c *Codec) Issue(claims domainauth.Claims) (string, error) {
	if claims.UserID == "" || claims.SessionID == "" {
		return "", errors.New("subject and session id are required")
	}
	issuedAt := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Email:        claims.Email,
		SessionID:    claims.SessionID,
		UserMetadata: claims.Metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature and expiry locally. An expired but otherwise valid token
// yields its claims together with ports.ErrTokenExpired.
func (c *Codec) Parse(token string) (domainauth.Claims, error) {
	if token == "" {
		return domainauth.Claims{}, ports.ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var ac accessClaims
	_, err := jwt.ParseWithClaims(token, &ac, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		claims, convErr := toDomain(&ac)
		if convErr != nil {
			return domainauth.Claims{}, convErr
		}
		return claims, ports.ErrTokenExpired
	default:
		return domainauth.Claims{}, fmt.Errorf("%w: %w", ports.ErrTokenInvalid, err)
	}

	return toDomain(&ac)
}

func toDomain(ac *accessClaims) (domainauth.Claims, error) {
	if ac.Subject == "" || ac.SessionID == "" {
		return domainauth.Claims{}, fmt.Errorf("%w: missing subject or session", ports.ErrTokenInvalid)
	}
	out := domainauth.Claims{
		UserID:    ac.Subject,
		Email:     ac.Email,
		SessionID: ac.SessionID,
		Metadata:  ac.UserMetadata,
	}
	if ac.ExpiresAt != nil {
		out.ExpiresAt = ac.ExpiresAt.Time
	}
	return out, nil
}
