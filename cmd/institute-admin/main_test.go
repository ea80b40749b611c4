package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/institute-web/internal/accessgate"
	"github.com/target/institute-web/internal/authstate"
	"github.com/target/institute-web/internal/client"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	httpx "github.com/target/institute-web/internal/http"
	"github.com/target/institute-web/internal/mocks"
	"github.com/target/institute-web/internal/service"
	"github.com/target/institute-web/internal/service/servicetest"
	"go.uber.org/mock/gomock"
)

const (
	anonKey    = "anon-test-key"
	serviceKey = "service-test-key"
)

type cliHarness struct {
	stack       *servicetest.Stack
	archive     *mocks.MockArchiveRepository
	url         string
	sessionFile string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	st := servicetest.New(t, servicetest.Options{Start: time.Now()})
	gate, err := accessgate.New(accessgate.Options{Auth: st.Auth, Roles: st.Roles})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	archive := mocks.NewMockArchiveRepository(ctrl)
	srv := httptest.NewServer(httpx.NewRouter(httpx.RouterServices{
		Auth:            st.Auth,
		Gate:            gate,
		Roles:           st.Roles,
		Profiles:        st.Own,
		Archive:         service.NewArchiveService(archive),
		Books:           service.NewBookService(mocks.NewMockBookRepository(ctrl)),
		Gallery:         service.NewGalleryService(mocks.NewMockGalleryRepository(ctrl)),
		AnonKey:         anonKey,
		ServiceKey:      serviceKey,
		EventsHeartbeat: time.Second,
	}))
	t.Cleanup(srv.Close)
	return &cliHarness{
		stack:       st,
		archive:     archive,
		url:         srv.URL,
		sessionFile: filepath.Join(t.TempDir(), "session.json"),
	}
}

// run executes one CLI invocation and returns its stdout.
func (h *cliHarness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--api-url", h.url, "--anon-key", anonKey, "--session-file", h.sessionFile}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func (h *cliHarness) signIn(t *testing.T, email string) {
	t.Helper()
	out, err := h.run(t, servicetest.Password+"\n", "sign-in", "--email", email, "--password-stdin")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as "+email)
}

func TestSignInAndWhoami(t *testing.T) {
	h := newCLIHarness(t)
	ident := h.stack.SignUp(t, "reader@example.org", domainauth.RoleUser)
	h.signIn(t, "reader@example.org")

	info, err := os.Stat(h.sessionFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "reader@example.org ("+ident.ID+")")
	assert.Contains(t, out, "role: user (from profile)")

	out, err = h.run(t, "", "--json", "whoami")
	require.NoError(t, err)
	var w whoami
	require.NoError(t, json.Unmarshal([]byte(out), &w))
	assert.True(t, w.SignedIn)
	assert.Equal(t, domainauth.RoleUser, w.Role)
	assert.Equal(t, authstate.RoleFromProfile, w.RoleSource)
}

func TestSignIn_WrongPassword(t *testing.T) {
	h := newCLIHarness(t)
	h.stack.SignUp(t, "reader@example.org", domainauth.RoleUser)

	_, err := h.run(t, "not the password\n", "sign-in", "--email", "reader@example.org", "--password-stdin")
	require.True(t, client.IsStatus(err, 401), "got %v", err)
	_, statErr := os.Stat(h.sessionFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSignIn_RequiresEmail(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run(t, "secret\n", "sign-in")
	require.Error(t, err)
}

func TestWhoami_SignedOut(t *testing.T) {
	h := newCLIHarness(t)
	out, err := h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in\n", out)
}

func TestAdminViews_DeniedForUser(t *testing.T) {
	h := newCLIHarness(t)
	h.stack.SignUp(t, "reader@example.org", domainauth.RoleUser)
	h.signIn(t, "reader@example.org")

	for _, args := range [][]string{
		{"users", "list"},
		{"archive", "list"},
		{"users", "set-role", "someone", "admin"},
	} {
		_, err := h.run(t, "", args...)
		require.ErrorIs(t, err, authstate.ErrUnauthorized, args)
		assert.Contains(t, err.Error(), "access denied")
	}
}

func TestAdminViews_DeniedWhenSignedOut(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run(t, "", "users", "list")
	require.ErrorIs(t, err, authstate.ErrUnauthorized)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestAdminViews(t *testing.T) {
	h := newCLIHarness(t)
	h.stack.SignUp(t, "dean@example.org", domainauth.RoleAdmin)
	target := h.stack.SignUp(t, "lecturer@example.org", domainauth.RoleUser)
	h.signIn(t, "dean@example.org")

	out, err := h.run(t, "", "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "dean@example.org")
	assert.Contains(t, out, "lecturer@example.org")

	out, err = h.run(t, "", "--json", "users", "set-role", target.ID, "admin")
	require.NoError(t, err)
	var profiles []*domainauth.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, domainauth.RoleAdmin, profiles[0].Role)

	role, err := h.stack.Roles.Resolve(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, role)

	h.archive.EXPECT().List(gomock.Any()).Return([]*model.ArchiveEntry{
		{ID: "a1", Title: "Founding Charter", MinRole: domainauth.RoleAdmin},
	}, nil)
	out, err = h.run(t, "", "archive", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Founding Charter")
	assert.Contains(t, out, "admin")
}

func TestSetRole_RejectsUnknownRole(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run(t, "", "users", "set-role", "someone", "owner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestSignOut_RemovesSession(t *testing.T) {
	h := newCLIHarness(t)
	h.stack.SignUp(t, "reader@example.org", domainauth.RoleUser)
	h.signIn(t, "reader@example.org")

	out, err := h.run(t, "", "sign-out")
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out)
	assert.Equal(t, 0, h.stack.Sessions.Len())

	_, statErr := os.Stat(h.sessionFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSession_IgnoresOtherServer(t *testing.T) {
	a := &app{sessionFile: filepath.Join(t.TempDir(), "nested", "session.json")}
	require.NoError(t, a.saveSession("https://a.example.org", client.Tokens{AccessToken: "x", RefreshToken: "y"}))

	got, err := a.loadSession("https://a.example.org")
	require.NoError(t, err)
	assert.Equal(t, "y", got.RefreshToken)

	got, err = a.loadSession("https://b.example.org")
	require.NoError(t, err)
	assert.Equal(t, client.Tokens{}, got)

	require.NoError(t, a.saveSession("https://a.example.org", client.Tokens{}))
	got, err = a.loadSession("https://a.example.org")
	require.NoError(t, err)
	assert.Equal(t, client.Tokens{}, got)
}

func TestSeedAdmin(t *testing.T) {
	st := servicetest.New(t)
	ident := st.SignUp(t, "founder@example.org", domainauth.RoleUser)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, seedAdmin(ctx, &out, st.Directory, st.Roles, "Founder@Example.org"))
	assert.Contains(t, out.String(), "is now admin")

	role, err := st.Roles.Resolve(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, role)

	err = seedAdmin(ctx, &out, st.Directory, st.Roles, "nobody@example.org")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign up first")
}

func TestUsers_ServiceKey(t *testing.T) {
	h := newCLIHarness(t)
	target := h.stack.SignUp(t, "lecturer@example.org", domainauth.RoleUser)

	t.Setenv(envServiceKey, "")
	_, err := h.run(t, "", "users", "--service", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), envServiceKey)

	t.Setenv(envServiceKey, serviceKey)
	out, err := h.run(t, "", "--json", "users", "--service", "set-role", target.ID, "admin")
	require.NoError(t, err)
	var profiles []*domainauth.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, domainauth.RoleAdmin, profiles[0].Role)

	out, err = h.run(t, "", "users", "--service", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "lecturer@example.org")
	_, statErr := os.Stat(h.sessionFile)
	assert.True(t, os.IsNotExist(statErr), "service calls leave no session behind")

	t.Setenv(envServiceKey, anonKey)
	_, err = h.run(t, "", "users", "--service", "list")
	assert.True(t, client.IsStatus(err, 401), "got %v", err)
}

func TestSignIn_PromptsWhenStdinIsNotATerminal(t *testing.T) {
	h := newCLIHarness(t)
	h.stack.SignUp(t, "reader@example.org", domainauth.RoleUser)

	out, err := h.run(t, servicetest.Password+"\n", "sign-in", "--email", "reader@example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as reader@example.org")
	assert.NotContains(t, out, servicetest.Password)

	_, err = h.run(t, "\n", "sign-in", "--email", "reader@example.org")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty password")
}
