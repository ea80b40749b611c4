package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// CSRFCookieName is the double-submit cookie.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName carries the submitted token (canonical form).
	CSRFHeaderName = "X-Csrf-Token"

	csrfTokenBytes    = 32
	csrfTokenLifetime = 12 * time.Hour
)

var errCSRFMismatch = errors.New("CSRF token validation failed")

// CSRFProtection protects state-changing requests with the double-submit cookie pattern.
// Safe methods receive a token cookie when none is present; every other method must echo
// the cookie value in the X-Csrf-Token header.
func CSRFProtection(cookies CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(CSRFCookieName); err == nil {
				token = c.Value
			}
			if token == "" {
				var err error
				if token, err = generateCSRFToken(); err != nil {
					WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "csrf_unavailable", Err: err})
					return
				}
				setCSRFCookie(w, r, cookies, token)
			}

			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))
			if requiresCSRFValidation(r.Method) && !validCSRFSubmission(r, token) {
				WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "csrf_failed", Err: errCSRFMismatch})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requiresCSRFValidation returns true if the HTTP method requires CSRF validation.
func requiresCSRFValidation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// generateCSRFToken fails closed rather than falling back to a predictable token.
func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// setCSRFCookie leaves the cookie readable by scripts so pages can echo it back.
func setCSRFCookie(w http.ResponseWriter, r *http.Request, cookies CookieConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   cookies.Domain,
		HttpOnly: false,
		Secure:   cookies.secure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfTokenLifetime.Seconds()),
	})
}

// validCSRFSubmission compares in constant time against the cookie value.
func validCSRFSubmission(r *http.Request, cookieToken string) bool {
	if cookieToken == "" {
		return false
	}
	submitted := r.Header.Get(CSRFHeaderName)
	if submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) == 1
}

// csrfTokenKey is an unexported context key type for CSRF token storage.
type csrfTokenKey struct{}

// CSRFToken returns the token CSRFProtection attached to the request.
func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
