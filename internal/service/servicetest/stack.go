// Package servicetest wires the auth and role services over in-memory stores for tests
// of the layers above them.
package servicetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/target/institute-web/internal/adapters/jwtcodec"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	mockauth "github.com/target/institute-web/internal/mocks/auth"
	"github.com/target/institute-web/internal/service"
)

// Secret is the HS256 key used by every stack.
const Secret = "0123456789abcdef0123456789abcdef"

// Issuer is the access token issuer used by every stack.
const Issuer = "institute-test"

// Clock is a settable time source safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Stack is a fully wired auth core backed by memory.
type Stack struct {
	Auth      *service.AuthService
	Roles     *service.RoleService
	Own       *service.ProfileService
	Codec     *jwtcodec.Codec
	Directory *mockauth.MemoryDirectory
	Profiles  *mockauth.MemoryProfiles
	Sessions  *mockauth.MemorySessionStore
	Events    *mockauth.MemoryEvents
	Clock     *Clock
}

// Options tunes a Stack.
type Options struct {
	AccessTTL  time.Duration
	SessionTTL time.Duration
	// Start is the initial clock time; zero means 2026-03-01 12:00 UTC.
	Start time.Time
}

// New builds a Stack whose clock starts at Options.Start.
func New(t testing.TB, opts ...Options) *Stack {
	t.Helper()
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	start := o.Start
	if start.IsZero() {
		start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	clock := &Clock{now: start}
	codec, err := jwtcodec.New(jwtcodec.Config{Secret: []byte(Secret), Issuer: Issuer, Now: clock.Now})
	require.NoError(t, err)

	st := &Stack{
		Codec:     codec,
		Directory: mockauth.NewMemoryDirectory(),
		Profiles:  mockauth.NewMemoryProfiles(),
		Sessions:  mockauth.NewMemorySessionStore(),
		Events:    mockauth.NewMemoryEvents(),
		Clock:     clock,
	}
	st.Directory.Now = clock.Now
	st.Profiles.Now = clock.Now

	st.Auth = service.NewAuthService(service.AuthServiceOptions{
		Identities: st.Directory,
		Profiles:   st.Profiles,
		Sessions:   st.Sessions,
		Events:     st.Events,
		Tokens:     codec,
		Hasher:     mockauth.PlainHasher{},
		Provider:   mockauth.NewMockAuthProvider(),
		AccessTTL:  o.AccessTTL,
		SessionTTL: o.SessionTTL,
		Now:        clock.Now,
	})
	st.Roles, err = service.NewRoleService(service.RoleServiceOptions{Profiles: st.Profiles, Events: st.Events})
	require.NoError(t, err)
	st.Own = service.NewProfileService(st.Profiles)
	return st
}

// Password is the password given to every account created by SignUp.
const Password = "correct horse battery"

// SignUp creates a password account and sets its stored role.
func (s *Stack) SignUp(t testing.TB, email string, role domainauth.Role) *domainauth.Identity {
	t.Helper()
	ident, err := s.Auth.SignUp(context.Background(), &model.SignUpRequest{Email: email, Password: Password})
	require.NoError(t, err)
	if role != domainauth.RoleUser {
		s.Profiles.Put(ident.ID, ident.Email, role)
	}
	return ident
}

// SignIn opens a session for an account created by SignUp.
func (s *Stack) SignIn(t testing.TB, email string) *service.AuthResult {
	t.Helper()
	res, err := s.Auth.SignIn(context.Background(), &model.SignInRequest{Email: email, Password: Password})
	require.NoError(t, err)
	return res
}
