package httpx

import (
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// Session cookie names. The access cookie holds the signed JWT; the refresh cookie
// holds "<session id>.<secret>".
const (
	AccessCookieName  = "sb-access-token"
	RefreshCookieName = "sb-refresh-token"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginCookie     = "post_login_redirect"
	oauthCookieLifetime = 10 * time.Minute
)

// CookieConfig controls attributes shared by every cookie the server sets.
type CookieConfig struct {
	Domain string
	// Secure forces the Secure attribute; it is also set for TLS or forwarded-HTTPS requests.
	Secure bool
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || isForwardedHTTPS(r)
}

// setSessionCookies mirrors t into the access and refresh cookies. Both live until the
// session expires so an expired access token still reaches the gate alongside its refresh token.
func (c CookieConfig) setSessionCookies(w http.ResponseWriter, r *http.Request, t domainauth.Tokens) {
	c.set(w, r, AccessCookieName, t.AccessToken, t.RefreshExpiresAt)
	c.set(w, r, RefreshCookieName, t.RefreshToken, t.RefreshExpiresAt)
}

func (c CookieConfig) clearSessionCookies(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, AccessCookieName)
	c.clear(w, r, RefreshCookieName)
}

func (c CookieConfig) set(w http.ResponseWriter, r *http.Request, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  expires.UTC(),
	})
}

// clear mirrors the attributes used when setting so browsers match the cookie on deletion.
func (c CookieConfig) clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionTokens reads both session cookies; missing cookies yield empty strings.
func sessionTokens(r *http.Request) (access, refresh string) {
	if c, err := r.Cookie(AccessCookieName); err == nil {
		access = c.Value
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		refresh = c.Value
	}
	return access, refresh
}

// isForwardedHTTPS checks if the request was forwarded over HTTPS.
// Handles comma-separated values in X-Forwarded-Proto header.
func isForwardedHTTPS(r *http.Request) bool {
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

// safeRedirectPath ensures the redirect is a same-origin relative path. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" || !strings.HasPrefix(candidate, "/") || strings.HasPrefix(candidate, "//") ||
		strings.HasPrefix(candidate, "/\\") {
		return "/"
	}
	return candidate
}
