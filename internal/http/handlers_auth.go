package httpx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	"github.com/target/institute-web/internal/observability/metrics"
	"github.com/target/institute-web/internal/ports"
	"github.com/target/institute-web/internal/service"
)

const defaultEventsHeartbeat = 25 * time.Second

// AuthAPI is the auth service surface the handlers need.
type AuthAPI interface {
	SignUp(ctx context.Context, req *model.SignUpRequest) (*domainauth.Identity, error)
	SignIn(ctx context.Context, req *model.SignInRequest) (*service.AuthResult, error)
	SignOut(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	GetSession(ctx context.Context, accessToken string) (*domainauth.Session, error)
	ParseAccess(accessToken string) (domainauth.Claims, error)
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.AuthResult, error)
	Events() ports.SessionEvents
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc     AuthAPI
	Cookies CookieConfig
	// OIDCRedirectURL is the registered callback passed to the identity provider.
	OIDCRedirectURL string
	Heartbeat       time.Duration
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// sessionPayload is the client view of a session. Session is null when signed out.
type sessionPayload struct {
	Session   *domainauth.Session `json:"session"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

func resultPayload(res *service.AuthResult) sessionPayload {
	pub := res.Session.Public()
	exp := res.Tokens.AccessExpiresAt
	return sessionPayload{Session: &pub, ExpiresAt: &exp}
}

// SignUp creates a password identity.
// POST /auth/sign-up.
func (h *AuthHandlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req model.SignUpRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	ident, err := h.Svc.SignUp(r.Context(), &req)
	if err != nil {
		h.Metrics.RecordAuthFailure("sign_up", err)
		writeServiceError(w, err, "sign_up_failed")
		return
	}
	WriteJSON(w, http.StatusCreated, ident)
}

// SignIn verifies credentials and sets the session cookies.
// POST /auth/sign-in.
func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req model.SignInRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.SignIn(r.Context(), &req)
	if err != nil {
		h.Metrics.RecordAuthFailure("sign_in", err)
		writeServiceError(w, err, "sign_in_failed")
		return
	}
	h.Cookies.setSessionCookies(w, r, res.Tokens)
	WriteJSON(w, http.StatusOK, resultPayload(res))
}

// SignOut destroys the caller's session and clears its cookies. It succeeds without a session.
// POST /auth/sign-out.
func (h *AuthHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if id := h.requestSessionID(r); id != "" {
		if err := h.Svc.SignOut(r.Context(), id); err != nil {
			h.logger().WarnContext(r.Context(), "sign-out failed", "error", err)
		}
	}
	h.Cookies.clearSessionCookies(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// requestSessionID prefers the refresh cookie handle and falls back to the access token,
// accepting an expired one.
func (h *AuthHandlers) requestSessionID(r *http.Request) string {
	access, refresh := sessionTokens(r)
	if id := service.SessionIDFromRefreshToken(refresh); id != "" {
		return id
	}
	if access == "" {
		return ""
	}
	claims, err := h.Svc.ParseAccess(access)
	if err != nil && !errors.Is(err, ports.ErrTokenExpired) {
		return ""
	}
	return claims.SessionID
}

// Refresh rotates the refresh cookie and issues a new access token.
// POST /auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	_, refresh := sessionTokens(r)
	if refresh == "" {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "no_session", Err: service.ErrNoSession})
		return
	}
	res, err := h.Svc.Refresh(r.Context(), refresh)
	if err != nil {
		h.Metrics.RecordAuthFailure("refresh", err)
		h.Cookies.clearSessionCookies(w, r)
		writeServiceError(w, err, "refresh_failed")
		return
	}
	h.Cookies.setSessionCookies(w, r, res.Tokens)
	WriteJSON(w, http.StatusOK, resultPayload(res))
}

// Session returns the caller's live session, or a null session when signed out.
// GET /auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	access, _ := sessionTokens(r)
	sess, err := h.Svc.GetSession(r.Context(), access)
	if err != nil {
		WriteJSON(w, http.StatusOK, sessionPayload{})
		return
	}
	pub := sess.Public()
	WriteJSON(w, http.StatusOK, sessionPayload{Session: &pub})
}

// Events streams the caller's own session change events as server-sent events.
// GET /auth/events.
func (h *AuthHandlers) Events(w http.ResponseWriter, r *http.Request) {
	v, ok := ViewerFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "no_session", Err: service.ErrNoSession})
		return
	}
	src := h.Svc.Events()
	if src == nil {
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "events_unavailable",
			Err: errors.New("session events are not configured")})
		return
	}
	ch, cancel, err := src.Subscribe(r.Context())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "session event subscribe failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "events_unavailable", Err: errInternal})
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil || rc.Flush() != nil {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultEventsHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.UserID != v.UserID {
				continue
			}
			if err := writeSessionEvent(w, ev); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}

func writeSessionEvent(w http.ResponseWriter, ev domainauth.SessionEvent) error {
	if ev.Session != nil {
		pub := ev.Session.Public()
		ev.Session = &pub
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

// OIDCLogin starts a federated sign-in.
// GET /auth/oidc/login?redirect_uri=<optional relative path>.
func (h *AuthHandlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	res, err := h.Svc.BeginLogin(r.Context(), h.OIDCRedirectURL)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin federated login failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: errInternal})
		return
	}
	exp := time.Now().Add(oauthCookieLifetime)
	h.Cookies.set(w, r, oauthStateCookie, res.State, exp)
	h.Cookies.set(w, r, oauthNonceCookie, res.Nonce, exp)
	h.Cookies.set(w, r, postLoginCookie, redirectURI, exp)
	http.Redirect(w, r, res.AuthURL, http.StatusFound)
}

// OIDCCallback completes a federated sign-in and sets the session cookies.
// GET /auth/oidc/callback?code=<code>&state=<state>.
func (h *AuthHandlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_params",
			Err: errors.New("code and state are required")})
		return
	}
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_state",
			Err: errors.New("invalid or missing state parameter")})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_nonce",
			Err: errors.New("missing nonce")})
		return
	}

	res, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	h.Cookies.clear(w, r, oauthStateCookie)
	h.Cookies.clear(w, r, oauthNonceCookie)
	if err != nil {
		h.Metrics.RecordAuthFailure("oidc_callback", err)
		if errors.Is(err, service.ErrAccountConflict) {
			writeServiceError(w, err, "login_failed")
			return
		}
		h.logger().WarnContext(r.Context(), "federated login failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "login_failed",
			Err: errors.New("sign-in could not be completed")})
		return
	}

	h.Cookies.setSessionCookies(w, r, res.Tokens)
	redirectURI := "/"
	if c, err := r.Cookie(postLoginCookie); err == nil {
		redirectURI = safeRedirectPath(c.Value)
	}
	h.Cookies.clear(w, r, postLoginCookie)
	http.Redirect(w, r, redirectURI, http.StatusFound)
}
