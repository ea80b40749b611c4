package client

import (
	"context"
	"net/http"
	"time"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionBody struct {
	Session   *domainauth.Session `json:"session"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

// SignUp creates a password identity. It does not sign in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*domainauth.Identity, error) {
	var ident domainauth.Identity
	err := c.do(ctx, requestParams{
		method: http.MethodPost,
		path:   "/auth/sign-up",
		body:   credentials{Email: email, Password: password},
		apiKey: true,
	}, &ident)
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// SignIn opens a session; the jar receives the session cookies.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domainauth.Session, error) {
	var body sessionBody
	err := c.do(ctx, requestParams{
		method: http.MethodPost,
		path:   "/auth/sign-in",
		body:   credentials{Email: email, Password: password},
		apiKey: true,
	}, &body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.csrf = ""
	c.mu.Unlock()
	c.publishLocal(domainauth.EventSignedIn, body.Session)
	return body.Session, nil
}

// SignOut ends the session on the server and empties the jar. It succeeds when signed out.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, requestParams{method: http.MethodPost, path: "/auth/sign-out"}, nil)
	c.clearTokens()
	c.publishLocal(domainauth.EventSignedOut, nil)
	return err
}

// Refresh rotates the refresh token and returns the refreshed session.
func (c *Client) Refresh(ctx context.Context) (*domainauth.Session, error) {
	if c.Tokens().RefreshToken == "" {
		return nil, ErrNotSignedIn
	}
	var body sessionBody
	if err := c.do(ctx, requestParams{method: http.MethodPost, path: "/auth/refresh"}, &body); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			c.clearTokens()
			c.publishLocal(domainauth.EventSignedOut, nil)
		}
		return nil, err
	}
	c.publishLocal(domainauth.EventTokenRefreshed, body.Session)
	return body.Session, nil
}

// Current returns the live session, or nil when signed out. An expired access token
// is refreshed once before giving up.
func (c *Client) Current(ctx context.Context) (*domainauth.Session, error) {
	sess, err := c.session(ctx)
	if err != nil || sess != nil {
		return sess, err
	}
	if c.Tokens().RefreshToken == "" {
		return nil, nil
	}
	if _, err := c.Refresh(ctx); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			return nil, nil
		}
		return nil, err
	}
	return c.session(ctx)
}

func (c *Client) session(ctx context.Context) (*domainauth.Session, error) {
	var body sessionBody
	if err := c.do(ctx, requestParams{method: http.MethodGet, path: "/auth/session"}, &body); err != nil {
		return nil, err
	}
	return body.Session, nil
}

// GetOwn reads the caller's own profile. userID must match the signed-in identity;
// the server only ever returns the caller's row.
func (c *Client) GetOwn(ctx context.Context, userID string) (*domainauth.Profile, error) {
	var p domainauth.Profile
	if err := c.do(ctx, requestParams{method: http.MethodGet, path: "/api/me/profile"}, &p); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			return nil, ErrNotSignedIn
		}
		return nil, err
	}
	if userID != "" && p.ID != userID {
		return nil, ErrNotSignedIn
	}
	return &p, nil
}
