package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/target/institute-web/internal/accessgate"
	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// AccessDecider is the edge access gate.
type AccessDecider interface {
	Decide(ctx context.Context, st accessgate.RequestState) accessgate.Decision
}

// SessionReader verifies an access token and confirms its session is still live.
type SessionReader interface {
	GetSession(ctx context.Context, accessToken string) (*domainauth.Session, error)
}

// RoleReader reads the stored role with elevated credentials.
type RoleReader interface {
	Resolve(ctx context.Context, userID string) (domainauth.Role, error)
}

// AccessGate runs the gate before any handler. Refreshed credentials are written back
// even when the request is denied; denials are a 303 to the gate's redirect target.
func AccessGate(gate AccessDecider, cookies CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, refresh := sessionTokens(r)
			d := gate.Decide(r.Context(), accessgate.RequestState{
				Path:         path.Clean("/" + r.URL.Path),
				AccessToken:  access,
				RefreshToken: refresh,
			})

			switch {
			case d.Refreshed != nil:
				cookies.setSessionCookies(w, r, *d.Refreshed)
			case d.Reason == accessgate.ReasonRefreshFailed:
				cookies.clearSessionCookies(w, r)
			}
			if !d.Allow {
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}
			if d.Protected {
				r = r.WithContext(WithViewer(r.Context(), &Viewer{
					UserID:    d.UserID,
					Email:     d.Email,
					SessionID: d.SessionID,
					Role:      d.Role,
				}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireViewRole re-checks the role the gate placed in context. Requests without a viewer
// or below the required tier are sent to the unauthorized page.
func RequireViewRole(required domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, ok := ViewerFromContext(r.Context())
			if !ok || v.UserID == "" || !domainauth.CanAccess(required, v.Role) {
				http.Redirect(w, r, accessgate.UnauthorizedPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentifyViewer attaches the caller to requests outside the gated prefixes. An expired,
// revoked or missing access token leaves the request anonymous; a failed role read leaves
// the viewer with no role. It never rejects a request.
func IdentifyViewer(sessions SessionReader, roles RoleReader, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ViewerFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			access, _ := sessionTokens(r)
			if access == "" {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := sessions.GetSession(r.Context(), access)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			role, err := roles.Resolve(r.Context(), sess.UserID)
			if err != nil {
				logger.WarnContext(r.Context(), "viewer role lookup failed", "user_id", sess.UserID, "error", err)
				role = domainauth.RoleNone
			}
			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), &Viewer{
				UserID:    sess.UserID,
				Email:     sess.Email,
				SessionID: sess.ID,
				Role:      role,
			})))
		})
	}
}
