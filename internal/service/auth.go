package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/institute-web/internal/core"
	"github.com/target/institute-web/internal/data"
	"github.com/target/institute-web/internal/data/cryptoutil"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	"github.com/target/institute-web/internal/ports"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultSessionTTL = 7 * 24 * time.Hour
	defaultReuseGrace = 10 * time.Second
	refreshSecretLen  = 32

	// refresh attempts before giving up on a session under rotation contention
	maxRefreshAttempts = 3
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password; the two are indistinguishable.
	ErrInvalidCredentials error = &authError{"invalid_credentials", "invalid email or password"}
	// ErrInvalidRefreshToken is returned when a refresh token is malformed, unknown, revoked or reused.
	ErrInvalidRefreshToken error = &authError{"invalid_refresh_token", "invalid refresh token"}
	// ErrSessionExpired is returned when the session record has passed its expiry.
	ErrSessionExpired error = &authError{"session_expired", "session expired"}
	// ErrNoSession is returned when no session is attached to the request.
	ErrNoSession error = &authError{"no_session", "no session"}
	// ErrAccountConflict is returned when a federated sign-in asserts an email owned by another account.
	ErrAccountConflict error = &authError{"account_conflict", "email already registered with a different sign-in method"}
)

// authError is a sentinel that also names its metrics label.
type authError struct {
	class string
	msg   string
}

func (e *authError) Error() string      { return e.msg }
func (e *authError) ErrorClass() string { return e.class }

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Identities core.IdentityRepository
	// Profiles is the elevated profile store; sign-up writes the default role through it.
	Profiles core.ProfileRepository
	Sessions ports.SessionStore
	Events   ports.SessionEvents
	Tokens   ports.TokenCodec
	Hasher   ports.PasswordHasher
	// Provider enables federated sign-in; nil disables BeginLogin/CompleteLogin.
	Provider ports.AuthProvider
	// RoleHint copies a lower-trust role hint from identity metadata into the session.
	RoleHint func(metadata map[string]any) domainauth.Role

	AccessTTL  time.Duration
	SessionTTL time.Duration
	// ReuseInterval is how long a just-rotated refresh secret is still accepted.
	// Negative disables the grace period.
	ReuseInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// AuthService is the in-process auth service: credentials, sessions, refresh and change notifications.
type AuthService struct {
	identities core.IdentityRepository
	profiles   core.ProfileRepository
	sessions   ports.SessionStore
	events     ports.SessionEvents
	tokens     ports.TokenCodec
	hasher     ports.PasswordHasher
	provider   ports.AuthProvider
	roleHint   func(map[string]any) domainauth.Role
	accessTTL  time.Duration
	sessionTTL time.Duration
	reuseGrace time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	s := &AuthService{
		identities: opts.Identities,
		profiles:   opts.Profiles,
		sessions:   opts.Sessions,
		events:     opts.Events,
		tokens:     opts.Tokens,
		hasher:     opts.Hasher,
		provider:   opts.Provider,
		roleHint:   opts.RoleHint,
		accessTTL:  opts.AccessTTL,
		sessionTTL: opts.SessionTTL,
		reuseGrace: opts.ReuseInterval,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = defaultAccessTTL
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = defaultSessionTTL
	}
	switch {
	case s.reuseGrace == 0:
		s.reuseGrace = defaultReuseGrace
	case s.reuseGrace < 0:
		s.reuseGrace = 0
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.roleHint == nil {
		s.roleHint = func(map[string]any) domainauth.Role { return domainauth.RoleNone }
	}
	s.logger = s.logger.With("component", "auth_service")
	return s
}

// AuthResult is a freshly issued session together with the cookie credentials for it.
type AuthResult struct {
	Session domainauth.Session
	Tokens  domainauth.Tokens
}

// SignUp creates a password identity and its profile with the default role.
func (s *AuthService) SignUp(ctx context.Context, req *model.SignUpRequest) (*domainauth.Identity, error) {
	if req == nil {
		return nil, errors.New("sign-up request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	ident, err := s.identities.Create(ctx, &domainauth.Account{
		Identity:     domainauth.Identity{Email: req.Email},
		PasswordHash: hash,
		Provider:     "password",
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.profiles.Create(ctx, ident.ID, ident.Email); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.logger.InfoContext(ctx, "identity created", "user_id", ident.ID)
	return ident, nil
}

// SignIn verifies credentials and opens a new session.
func (s *AuthService) SignIn(ctx context.Context, req *model.SignInRequest) (*AuthResult, error) {
	if req == nil {
		return nil, ErrInvalidCredentials
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	acct, err := s.identities.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, data.ErrIdentityNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if acct.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(acct.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.openSession(ctx, acct)
}

// BeginLoginResult contains the result of beginning a federated login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates a federated flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.provider == nil {
		return nil, errors.New("federated sign-in is not configured")
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a federated login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLogin exchanges the authorization code, finds or creates the identity and opens a session.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*AuthResult, error) {
	if s.provider == nil {
		return nil, errors.New("federated sign-in is not configured")
	}
	switch {
	case input.Code == "":
		return nil, errors.New("authorization code is required")
	case input.State == "":
		return nil, errors.New("state parameter is required")
	case input.Nonce == "":
		return nil, errors.New("nonce parameter is required")
	}

	ext, err := s.provider.Exchange(ctx, ports.ExchangeInput(input))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	acct, err := s.federatedAccount(ctx, ext)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, acct)
}

func (s *AuthService) federatedAccount(ctx context.Context, ext domainauth.ExternalIdentity) (*domainauth.Account, error) {
	provider, _ := ext.Metadata["provider"].(string)
	if provider == "" {
		provider = "oidc"
	}

	acct, err := s.identities.GetBySubject(ctx, provider, ext.Subject)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, data.ErrIdentityNotFound) {
		return nil, fmt.Errorf("lookup federated identity: %w", err)
	}

	// An email already owned by a password account is never silently linked.
	if _, err := s.identities.GetByEmail(ctx, ext.Email); err == nil {
		return nil, ErrAccountConflict
	} else if !errors.Is(err, data.ErrIdentityNotFound) {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	newAcct := &domainauth.Account{
		Identity: domainauth.Identity{Email: ext.Email},
		Provider: provider,
		Subject:  ext.Subject,
		Metadata: ext.Metadata,
	}
	ident, err := s.identities.Create(ctx, newAcct)
	if err != nil {
		return nil, err
	}
	if _, err := s.profiles.Create(ctx, ident.ID, ident.Email); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	newAcct.Identity = *ident
	s.logger.InfoContext(ctx, "federated identity created", "user_id", ident.ID, "provider", provider)
	return newAcct, nil
}

// GetSession verifies the access token locally and confirms the session has not been revoked.
func (s *AuthService) GetSession(ctx context.Context, accessToken string) (*domainauth.Session, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	sess, err := s.loadSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UserID {
		return nil, ErrNoSession
	}
	return sess, nil
}

// ParseAccess verifies an access token without touching any store.
// An expired token yields its claims together with ports.ErrTokenExpired.
func (s *AuthService) ParseAccess(accessToken string) (domainauth.Claims, error) {
	if accessToken == "" {
		return domainauth.Claims{}, ErrNoSession
	}
	return s.tokens.Parse(accessToken)
}

// Refresh rotates the refresh secret and issues a new access token for the same session.
// The secret rotated out most recently is accepted for the reuse interval and yields the
// current secret without rotating again. Rotation is a compare-and-swap on the stored
// secret: a refresh that loses the race re-reads the session and takes the reuse path,
// so concurrent refreshes converge. Any other stale secret revokes the session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	id, secret, ok := splitRefreshToken(refreshToken)
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	for range maxRefreshAttempts {
		res, err := s.refreshOnce(ctx, id, secret)
		if !errors.Is(err, ports.ErrSessionConflict) {
			return res, err
		}
		s.logger.DebugContext(ctx, "refresh raced another rotation; retrying", "session_id", id)
	}
	s.logger.WarnContext(ctx, "refresh kept losing rotation races", "session_id", id)
	return nil, ErrInvalidRefreshToken
}

func (s *AuthService) refreshOnce(ctx context.Context, id, secret string) (*AuthResult, error) {
	sess, err := s.loadSession(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil, err
		}
		return nil, ErrInvalidRefreshToken
	}

	now := s.now()
	rotate := true
	if !cryptoutil.EqualTokens(sess.RefreshToken, secret) {
		if !s.withinReuseInterval(sess, secret, now) {
			s.logger.WarnContext(ctx, "refresh token reuse detected; revoking session", "user_id", sess.UserID)
			if delErr := s.sessions.Delete(ctx, sess.ID); delErr != nil {
				s.logger.ErrorContext(ctx, "failed to revoke session", "error", delErr)
			}
			s.publish(ctx, domainauth.SessionEvent{Kind: domainauth.EventSignedOut, UserID: sess.UserID, SessionID: sess.ID})
			return nil, ErrInvalidRefreshToken
		}
		rotate = false
	}

	acct, err := s.identities.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	expected := sess.RefreshToken
	if rotate {
		next, err := cryptoutil.RandomToken(refreshSecretLen)
		if err != nil {
			return nil, fmt.Errorf("generate refresh secret: %w", err)
		}
		sess.PreviousRefreshToken = sess.RefreshToken
		sess.RotatedAt = now
		sess.RefreshToken = next
	}
	sess.Email = acct.Email
	sess.RoleHint = s.roleHint(acct.Metadata)
	sess.Metadata = acct.Metadata
	sess.ExpiresAt = now.Add(s.sessionTTL)

	res, err := s.issue(ctx, *sess, acct.Metadata, now, expected)
	if err != nil {
		return nil, err
	}
	if rotate {
		public := res.Session.Public()
		s.publish(ctx, domainauth.SessionEvent{
			Kind:      domainauth.EventTokenRefreshed,
			UserID:    sess.UserID,
			SessionID: sess.ID,
			Session:   &public,
		})
	}
	return res, nil
}

func (s *AuthService) withinReuseInterval(sess *domainauth.Session, secret string, now time.Time) bool {
	if s.reuseGrace <= 0 || sess.PreviousRefreshToken == "" {
		return false
	}
	if !cryptoutil.EqualTokens(sess.PreviousRefreshToken, secret) {
		return false
	}
	return now.Before(sess.RotatedAt.Add(s.reuseGrace))
}

// SignOut destroys the session. Unknown sessions are not an error.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	sess, getErr := s.sessions.Get(ctx, sessionID)
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if getErr == nil {
		s.publish(ctx, domainauth.SessionEvent{Kind: domainauth.EventSignedOut, UserID: sess.UserID, SessionID: sess.ID})
	}
	return nil
}

// Events exposes the change notification stream.
func (s *AuthService) Events() ports.SessionEvents { return s.events }

func (s *AuthService) openSession(ctx context.Context, acct *domainauth.Account) (*AuthResult, error) {
	secret, err := cryptoutil.RandomToken(refreshSecretLen)
	if err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}
	now := s.now()
	sess := domainauth.Session{
		ID:           uuid.NewString(),
		UserID:       acct.ID,
		Email:        acct.Email,
		RefreshToken: secret,
		RoleHint:     s.roleHint(acct.Metadata),
		Metadata:     acct.Metadata,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	res, err := s.issue(ctx, sess, acct.Metadata, now, "")
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "session opened", "user_id", acct.ID, "session_id", sess.ID)
	public := res.Session.Public()
	s.publish(ctx, domainauth.SessionEvent{
		Kind:      domainauth.EventSignedIn,
		UserID:    acct.ID,
		SessionID: sess.ID,
		Session:   &public,
	})
	return res, nil
}

// issue persists sess and mints the access token bound to it.
func (s *AuthService) issue(
	ctx context.Context,
	sess domainauth.Session,
	metadata map[string]any,
	now time.Time,
	expected string,
) (*AuthResult, error) {
	accessExp := now.Add(s.accessTTL)
	if accessExp.After(sess.ExpiresAt) {
		accessExp = sess.ExpiresAt
	}
	access, err := s.tokens.Issue(domainauth.Claims{
		UserID:    sess.UserID,
		Email:     sess.Email,
		SessionID: sess.ID,
		Metadata:  metadata,
		ExpiresAt: accessExp,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	// An empty expected secret is a new session; anything else replaces a stored one.
	save := s.sessions.Save
	if expected != "" {
		save = func(ctx context.Context, sess domainauth.Session) error {
			return s.sessions.Swap(ctx, sess, expected)
		}
	}
	if err := save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &AuthResult{
		Session: sess,
		Tokens: domainauth.Tokens{
			AccessToken:      access,
			RefreshToken:     sess.ID + "." + sess.RefreshToken,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: sess.ExpiresAt,
		},
	}, nil
}

func (s *AuthService) loadSession(ctx context.Context, id string) (*domainauth.Session, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if sess.Expired(s.now()) {
		if delErr := s.sessions.Delete(ctx, id); delErr != nil {
			return nil, errors.Join(ErrSessionExpired, fmt.Errorf("delete session: %w", delErr))
		}
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

// publish is best effort: a lost notification delays client re-resolution but never grants access.
func (s *AuthService) publish(ctx context.Context, ev domainauth.SessionEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish session event", "kind", ev.Kind, "error", err)
	}
}

// splitRefreshToken parses "<session id>.<secret>".
func splitRefreshToken(tok string) (id, secret string, ok bool) {
	id, secret, ok = strings.Cut(tok, ".")
	if !ok || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

// SessionIDFromRefreshToken extracts the session handle from a refresh cookie value.
func SessionIDFromRefreshToken(tok string) string {
	id, _, _ := splitRefreshToken(tok)
	return id
}
