package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/institute-web/internal/adapters/jwtcodec"
	"github.com/target/institute-web/internal/data"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	apperrors "github.com/target/institute-web/internal/errors"
	"github.com/target/institute-web/internal/mocks"
	mockauth "github.com/target/institute-web/internal/mocks/auth"
	"github.com/target/institute-web/internal/ports"
	"go.uber.org/mock/gomock"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type authFixture struct {
	svc        *AuthService
	identities *mocks.MockIdentityRepository
	profiles   *mocks.MockProfileRepository
	sessions   *mockauth.MemorySessionStore
	events     *mockauth.MemoryEvents
	provider   *mockauth.MockAuthProvider
	now        time.Time
}

func (f *authFixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// newAuthFixture builds an AuthService over in-memory doubles. wrap, when given,
// decorates the session store the service sees.
func newAuthFixture(t *testing.T, wrap ...func(ports.SessionStore) ports.SessionStore) *authFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &authFixture{
		identities: mocks.NewMockIdentityRepository(ctrl),
		profiles:   mocks.NewMockProfileRepository(ctrl),
		sessions:   mockauth.NewMemorySessionStore(),
		events:     mockauth.NewMemoryEvents(),
		provider:   mockauth.NewMockAuthProvider(),
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	codec, err := jwtcodec.New(jwtcodec.Config{Secret: []byte(testSecret), Issuer: "institute-test", Now: clock})
	require.NoError(t, err)
	var sessions ports.SessionStore = f.sessions
	for _, w := range wrap {
		sessions = w(sessions)
	}

	f.svc = NewAuthService(AuthServiceOptions{
		Identities: f.identities,
		Profiles:   f.profiles,
		Sessions:   sessions,
		Events:     f.events,
		Tokens:     codec,
		Hasher:     mockauth.PlainHasher{},
		Provider:   f.provider,
		RoleHint: func(md map[string]any) domainauth.Role {
			s, _ := md["role"].(string)
			return domainauth.ParseRole(s)
		},
		AccessTTL:  10 * time.Minute,
		SessionTTL: 24 * time.Hour,
		Now:        clock,
	})
	return f
}

func memberAccount() *domainauth.Account {
	return &domainauth.Account{
		Identity:     domainauth.Identity{ID: "11111111-1111-1111-1111-111111111111", Email: "member@example.org"},
		PasswordHash: "plain:correct horse",
		Provider:     "password",
		Metadata:     map[string]any{"role": "admin"},
	}
}

func TestAuthService_SignUp(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.identities.EXPECT().
		Create(ctx, gomock.AssignableToTypeOf(&domainauth.Account{})).
		DoAndReturn(func(_ context.Context, acct *domainauth.Account) (*domainauth.Identity, error) {
			assert.Equal(t, "new@example.org", acct.Email)
			assert.Equal(t, "plain:correct horse", acct.PasswordHash)
			return &domainauth.Identity{ID: "id-1", Email: acct.Email}, nil
		})
	f.profiles.EXPECT().Create(ctx, "id-1", "new@example.org").
		Return(&domainauth.Profile{ID: "id-1", Role: domainauth.RoleUser}, nil)

	ident, err := f.svc.SignUp(ctx, &model.SignUpRequest{Email: " New@Example.org", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", ident.ID)
}

func TestAuthService_SignUp_ValidationAndConflict(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, &model.SignUpRequest{Email: "bad", Password: "correct horse"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	f.identities.EXPECT().Create(ctx, gomock.Any()).Return(nil, data.ErrEmailTaken)
	_, err = f.svc.SignUp(ctx, &model.SignUpRequest{Email: "taken@example.org", Password: "correct horse"})
	assert.ErrorIs(t, err, data.ErrEmailTaken)
}

func TestAuthService_SignIn(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	acct := memberAccount()

	f.identities.EXPECT().GetByEmail(ctx, "member@example.org").Return(acct, nil)

	res, err := f.svc.SignIn(ctx, &model.SignInRequest{Email: "Member@example.org", Password: "correct horse"})
	require.NoError(t, err)

	assert.Equal(t, acct.ID, res.Session.UserID)
	assert.Equal(t, domainauth.RoleAdmin, res.Session.RoleHint, "hint copied from metadata")
	assert.Equal(t, f.now.Add(24*time.Hour), res.Session.ExpiresAt)
	assert.Equal(t, f.now.Add(10*time.Minute), res.Tokens.AccessExpiresAt)
	assert.True(t, strings.HasPrefix(res.Tokens.RefreshToken, res.Session.ID+"."))
	assert.Equal(t, 1, f.sessions.Len())
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, f.events.Kinds())

	claims, err := f.svc.ParseAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, claims.UserID)
	assert.Equal(t, res.Session.ID, claims.SessionID)
}

func TestAuthService_SignIn_InvalidCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		f.identities.EXPECT().GetByEmail(ctx, "ghost@example.org").Return(nil, data.ErrIdentityNotFound)
		_, err := f.svc.SignIn(ctx, &model.SignInRequest{Email: "ghost@example.org", Password: "x"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		f.identities.EXPECT().GetByEmail(ctx, "member@example.org").Return(memberAccount(), nil)
		_, err := f.svc.SignIn(ctx, &model.SignInRequest{Email: "member@example.org", Password: "nope"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("federated account has no password", func(t *testing.T) {
		acct := memberAccount()
		acct.PasswordHash = ""
		f.identities.EXPECT().GetByEmail(ctx, "member@example.org").Return(acct, nil)
		_, err := f.svc.SignIn(ctx, &model.SignInRequest{Email: "member@example.org", Password: "anything"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("store failure is not masked", func(t *testing.T) {
		f.identities.EXPECT().GetByEmail(ctx, "member@example.org").Return(nil, errors.New("db down"))
		_, err := f.svc.SignIn(ctx, &model.SignInRequest{Email: "member@example.org", Password: "x"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})

	assert.Equal(t, 0, f.sessions.Len())
}

func signIn(t *testing.T, f *authFixture) *AuthResult {
	t.Helper()
	f.identities.EXPECT().GetByEmail(gomock.Any(), "member@example.org").Return(memberAccount(), nil)
	res, err := f.svc.SignIn(context.Background(), &model.SignInRequest{Email: "member@example.org", Password: "correct horse"})
	require.NoError(t, err)
	return res
}

func TestAuthService_GetSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := signIn(t, f)

	sess, err := f.svc.GetSession(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, sess.ID)

	_, err = f.svc.GetSession(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)

	f.advance(11 * time.Minute)
	_, err = f.svc.GetSession(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ports.ErrTokenExpired)
}

func TestAuthService_GetSession_RevokedAfterSignOut(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := signIn(t, f)

	require.NoError(t, f.svc.SignOut(ctx, res.Session.ID))
	_, err := f.svc.GetSession(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn, domainauth.EventSignedOut}, f.events.Kinds())

	require.NoError(t, f.svc.SignOut(ctx, res.Session.ID), "second sign-out is a no-op")
	require.NoError(t, f.svc.SignOut(ctx, ""))
}

func TestAuthService_Refresh_RotatesSecret(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first := signIn(t, f)

	f.advance(time.Hour)
	f.identities.EXPECT().GetByID(ctx, first.Session.UserID).Return(memberAccount(), nil)
	second, err := f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, first.Session.ID, second.Session.ID, "same session")
	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)
	assert.Equal(t, f.now.Add(24*time.Hour), second.Session.ExpiresAt, "sliding expiry")
	assert.Equal(t, domainauth.EventTokenRefreshed, f.events.Kinds()[1])

	ev := f.events.Published()[1]
	assert.Equal(t, first.Session.ID, ev.SessionID)
	require.NotNil(t, ev.Session)
	assert.Empty(t, ev.Session.RefreshToken, "secrets never leave the service in events")
	assert.Empty(t, ev.Session.PreviousRefreshToken)

	claims, err := f.svc.ParseAccess(second.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, first.Session.ID, claims.SessionID)
}

func TestAuthService_Refresh_ReuseRevokesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first := signIn(t, f)

	f.identities.EXPECT().GetByID(ctx, first.Session.UserID).Return(memberAccount(), nil)
	_, err := f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)

	f.advance(time.Minute)
	_, err = f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Equal(t, 0, f.sessions.Len(), "replayed secret revokes the session")
	assert.Equal(t, domainauth.EventSignedOut, f.events.Kinds()[len(f.events.Kinds())-1])
}

func TestAuthService_Refresh_ReuseIntervalConverges(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first := signIn(t, f)

	f.identities.EXPECT().GetByID(ctx, first.Session.UserID).Return(memberAccount(), nil).Times(2)
	second, err := f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)

	f.advance(2 * time.Second)
	replay, err := f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err, "just-rotated secret is accepted within the interval")
	assert.Equal(t, second.Tokens.RefreshToken, replay.Tokens.RefreshToken, "no second rotation")
	assert.Equal(t, 1, f.sessions.Len())
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn, domainauth.EventTokenRefreshed}, f.events.Kinds())
}

func TestAuthService_Refresh_OlderSecretRevokesEvenWithinInterval(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first := signIn(t, f)

	f.identities.EXPECT().GetByID(ctx, first.Session.UserID).Return(memberAccount(), nil).Times(2)
	second, err := f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	f.advance(time.Minute)
	_, err = f.svc.Refresh(ctx, second.Tokens.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Equal(t, 0, f.sessions.Len())
}

// rendezvousStore holds the next n Get calls until all of them have read the session,
// so the callers decide on a rotation from the same stored state.
type rendezvousStore struct {
	ports.SessionStore
	pending atomic.Int32
	arrived sync.WaitGroup
}

func (s *rendezvousStore) arm(n int) {
	s.arrived.Add(n)
	s.pending.Store(int32(n))
}

func (s *rendezvousStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	sess, err := s.SessionStore.Get(ctx, id)
	if s.pending.Add(-1) >= 0 {
		s.arrived.Done()
		s.arrived.Wait()
	}
	return sess, err
}

// conflictStore rejects every swap as if another rotation always won.
type conflictStore struct {
	ports.SessionStore
	swaps atomic.Int32
}

func (s *conflictStore) Swap(context.Context, domainauth.Session, string) error {
	s.swaps.Add(1)
	return ports.ErrSessionConflict
}

func TestAuthService_Refresh_ConcurrentRotationsConverge(t *testing.T) {
	store := &rendezvousStore{}
	f := newAuthFixture(t, func(inner ports.SessionStore) ports.SessionStore {
		store.SessionStore = inner
		return store
	})
	ctx := context.Background()
	first := signIn(t, f)

	f.identities.EXPECT().GetByID(gomock.Any(), first.Session.UserID).Return(memberAccount(), nil).AnyTimes()
	store.arm(2)

	results := make([]*AuthResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.Refresh(ctx, first.Tokens.RefreshToken)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].Tokens.RefreshToken, results[1].Tokens.RefreshToken, "both callers hold the winning secret")
	assert.NotEqual(t, first.Tokens.RefreshToken, results[0].Tokens.RefreshToken)
	assert.Equal(t, 1, f.sessions.Len())
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn, domainauth.EventTokenRefreshed}, f.events.Kinds())

	f.advance(time.Minute)
	next, err := f.svc.Refresh(ctx, results[1].Tokens.RefreshToken)
	require.NoError(t, err, "the converged secret keeps working")
	assert.NotEqual(t, results[1].Tokens.RefreshToken, next.Tokens.RefreshToken)
}

func TestAuthService_Refresh_GivesUpUnderContention(t *testing.T) {
	store := &conflictStore{}
	f := newAuthFixture(t, func(inner ports.SessionStore) ports.SessionStore {
		store.SessionStore = inner
		return store
	})
	ctx := context.Background()
	first := signIn(t, f)

	f.identities.EXPECT().GetByID(ctx, first.Session.UserID).Return(memberAccount(), nil).Times(maxRefreshAttempts)
	_, err := f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Equal(t, int32(maxRefreshAttempts), store.swaps.Load())
	assert.Equal(t, 1, f.sessions.Len(), "contention never revokes the session")
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, f.events.Kinds())
}

func TestAuthService_Refresh_Invalid(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for _, tok := range []string{"", "no-dot", ".secret", "id.", "unknown.secret"} {
		_, err := f.svc.Refresh(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken, tok)
	}

	res := signIn(t, f)
	f.advance(25 * time.Hour)
	_, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestAuthService_AccessTokenNeverOutlivesSession(t *testing.T) {
	f := newAuthFixture(t)
	f.svc.accessTTL = 48 * time.Hour
	res := signIn(t, f)
	assert.Equal(t, res.Session.ExpiresAt, res.Tokens.AccessExpiresAt)
}

func TestAuthService_PublishFailureDoesNotFailSignIn(t *testing.T) {
	f := newAuthFixture(t)
	f.events.PublishErr = errors.New("redis down")
	res := signIn(t, f)
	assert.NotEmpty(t, res.Tokens.AccessToken)
}

func TestAuthService_BeginLogin(t *testing.T) {
	f := newAuthFixture(t)
	res, err := f.svc.BeginLogin(context.Background(), "http://localhost:8080/auth/oidc/callback")
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", res.AuthURL)
	assert.Equal(t, "state-1", res.State)

	_, err = f.svc.BeginLogin(context.Background(), "")
	assert.Error(t, err)
}

func TestAuthService_CompleteLogin_CreatesIdentityAndProfile(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.identities.EXPECT().GetBySubject(ctx, "mock", "mock-subject-1").Return(nil, data.ErrIdentityNotFound)
	f.identities.EXPECT().GetByEmail(ctx, "mock.user@example.org").Return(nil, data.ErrIdentityNotFound)
	f.identities.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, acct *domainauth.Account) (*domainauth.Identity, error) {
			assert.Equal(t, "mock", acct.Provider)
			assert.Equal(t, "mock-subject-1", acct.Subject)
			assert.Empty(t, acct.PasswordHash)
			return &domainauth.Identity{ID: "fed-1", Email: acct.Email}, nil
		})
	f.profiles.EXPECT().Create(ctx, "fed-1", "mock.user@example.org").
		Return(&domainauth.Profile{ID: "fed-1", Role: domainauth.RoleUser}, nil)

	res, err := f.svc.CompleteLogin(ctx, CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.Equal(t, "fed-1", res.Session.UserID)
	assert.Equal(t, domainauth.RoleNone, res.Session.RoleHint)
}

func TestAuthService_CompleteLogin_ExistingAndConflict(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	in := CompleteLoginInput{Code: "c", State: "s", Nonce: "n"}

	existing := &domainauth.Account{Identity: domainauth.Identity{ID: "fed-1", Email: "mock.user@example.org"}}
	f.identities.EXPECT().GetBySubject(ctx, "mock", "mock-subject-1").Return(existing, nil)
	res, err := f.svc.CompleteLogin(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "fed-1", res.Session.UserID)

	f.identities.EXPECT().GetBySubject(ctx, "mock", "mock-subject-1").Return(nil, data.ErrIdentityNotFound)
	f.identities.EXPECT().GetByEmail(ctx, "mock.user@example.org").Return(memberAccount(), nil)
	_, err = f.svc.CompleteLogin(ctx, in)
	assert.ErrorIs(t, err, ErrAccountConflict)
}

func TestAuthService_CompleteLogin_RequiresParams(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.CompleteLogin(ctx, CompleteLoginInput{State: "s", Nonce: "n"})
	assert.Error(t, err)
	_, err = f.svc.CompleteLogin(ctx, CompleteLoginInput{Code: "c", Nonce: "n"})
	assert.Error(t, err)
	_, err = f.svc.CompleteLogin(ctx, CompleteLoginInput{Code: "c", State: "s"})
	assert.Error(t, err)
}

func TestSessionIDFromRefreshToken(t *testing.T) {
	assert.Equal(t, "abc", SessionIDFromRefreshToken("abc.def"))
	assert.Empty(t, SessionIDFromRefreshToken("abc"))
}
