// Package accessgate decides, per request, whether a protected path may be served.
//
// The gate is the only authoritative enforcement point. It parses the access token
// locally, refreshes it when expired and a refresh token is present, and reads the
// role from the elevated profile store on every decision. Any failure denies.
package accessgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/observability/metrics"
	"github.com/target/institute-web/internal/ports"
	"github.com/target/institute-web/internal/service"
)

// UnauthorizedPath is the redirect target for every denied request.
const UnauthorizedPath = "/unauthorized"

// DefaultPrefixes are the protected path prefixes.
var DefaultPrefixes = []string{"/admin", "/api/admin"}

// Decision reasons, also used as metric labels.
const (
	ReasonUnprotected   = "unprotected"
	ReasonAllowed       = "allowed"
	ReasonNoSession     = "no_session"
	ReasonInvalidToken  = "invalid_token"
	ReasonRefreshFailed = "refresh_failed"
	ReasonRoleLookup    = "role_lookup_failed"
	ReasonInsufficient  = "insufficient_role"
	ReasonInternalError = "internal_error"
)

// Authenticator verifies access tokens locally and rotates refresh tokens.
type Authenticator interface {
	ParseAccess(accessToken string) (domainauth.Claims, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
}

// RoleReader reads the authoritative role with elevated credentials.
type RoleReader interface {
	Resolve(ctx context.Context, userID string) (domainauth.Role, error)
}

// RequestState is everything the gate looks at for one request.
type RequestState struct {
	Path         string
	AccessToken  string
	RefreshToken string
}

// Decision is the outcome for one request. Redirect is set whenever Allow is false.
type Decision struct {
	Allow     bool
	Protected bool
	Redirect  string
	Reason    string
	UserID    string
	Email     string
	SessionID string
	Role      domainauth.Role
	// Refreshed carries rotated credentials the caller must write back as cookies.
	Refreshed *domainauth.Tokens
}

// Options configures a Gate.
type Options struct {
	Auth  Authenticator
	Roles RoleReader
	// Prefixes defaults to DefaultPrefixes.
	Prefixes []string
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Gate makes access decisions. It holds no per-request state.
type Gate struct {
	auth     Authenticator
	roles    RoleReader
	prefixes []string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New constructs a Gate. Both the authenticator and the elevated role reader are required.
func New(opts Options) (*Gate, error) {
	if opts.Auth == nil {
		return nil, errors.New("access gate requires an authenticator")
	}
	if opts.Roles == nil {
		return nil, errors.New("access gate requires an elevated role reader")
	}
	prefixes := opts.Prefixes
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		auth:     opts.Auth,
		roles:    opts.Roles,
		prefixes: normalizePrefixes(prefixes),
		metrics:  opts.Metrics,
		logger:   logger.With("component", "access_gate"),
	}, nil
}

func normalizePrefixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = "/" + strings.Trim(strings.TrimSpace(p), "/")
		if p != "/" {
			out = append(out, p)
		}
	}
	return out
}

// Protected reports whether path falls under a protected prefix on a segment boundary.
func (g *Gate) Protected(path string) bool {
	for _, p := range g.prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Decide computes the decision for one request. It never panics and denies on any error.
func (g *Gate) Decide(ctx context.Context, st RequestState) (d Decision) {
	if !g.Protected(st.Path) {
		return Decision{Allow: true, Reason: ReasonUnprotected}
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.ErrorContext(ctx, "access gate panic", "path", st.Path, "panic", fmt.Sprint(r))
			d = deny(ReasonInternalError)
		}
		d.Protected = true
		g.metrics.RecordGateDecision(d.Allow, d.Reason)
	}()

	d, claims, ok := g.identify(ctx, st)
	if !ok {
		return d
	}

	role, err := g.roles.Resolve(ctx, claims.UserID)
	if err != nil {
		g.logger.WarnContext(ctx, "role lookup failed; denying", "user_id", claims.UserID, "error", err)
		return g.withIdentity(deny(ReasonRoleLookup), claims, d.Refreshed)
	}
	if !domainauth.IsAdmin(role) {
		out := g.withIdentity(deny(ReasonInsufficient), claims, d.Refreshed)
		out.Role = role
		return out
	}

	out := g.withIdentity(Decision{Allow: true, Reason: ReasonAllowed}, claims, d.Refreshed)
	out.Role = role
	return out
}

// identify parses the access token, refreshing it when it has expired.
// A partial Decision is returned so refreshed tokens survive a later deny.
func (g *Gate) identify(ctx context.Context, st RequestState) (Decision, domainauth.Claims, bool) {
	if st.AccessToken == "" && st.RefreshToken == "" {
		return deny(ReasonNoSession), domainauth.Claims{}, false
	}

	claims, err := g.auth.ParseAccess(st.AccessToken)
	switch {
	case err == nil:
		return Decision{}, claims, true
	case errors.Is(err, ports.ErrTokenExpired), errors.Is(err, service.ErrNoSession):
		if st.RefreshToken == "" {
			return deny(ReasonNoSession), domainauth.Claims{}, false
		}
	default:
		g.logger.DebugContext(ctx, "access token rejected", "error", err)
		return deny(ReasonInvalidToken), domainauth.Claims{}, false
	}

	res, err := g.auth.Refresh(ctx, st.RefreshToken)
	if err != nil {
		g.metrics.RecordAuthFailure("gate_refresh", err)
		g.logger.InfoContext(ctx, "session refresh failed; denying", "error", err)
		return deny(ReasonRefreshFailed), domainauth.Claims{}, false
	}
	claims = domainauth.Claims{
		UserID:    res.Session.UserID,
		Email:     res.Session.Email,
		SessionID: res.Session.ID,
		ExpiresAt: res.Tokens.AccessExpiresAt,
	}
	tokens := res.Tokens
	return Decision{Refreshed: &tokens}, claims, true
}

func (g *Gate) withIdentity(d Decision, c domainauth.Claims, refreshed *domainauth.Tokens) Decision {
	d.UserID = c.UserID
	d.Email = c.Email
	d.SessionID = c.SessionID
	d.Refreshed = refreshed
	return d
}

func deny(reason string) Decision {
	return Decision{Allow: false, Redirect: UnauthorizedPath, Reason: reason, Role: domainauth.RoleNone}
}
