package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/institute-web/config"
	"github.com/target/institute-web/internal/adapters/devauth"
	"github.com/target/institute-web/internal/data"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestBuildAuthProvider(t *testing.T) {
	tests := []struct {
		name     string
		auth     config.AuthConfig
		wantNil  bool
		wantErr  bool
		wantType any
	}{
		{
			name:    "password mode has no federated provider",
			auth:    config.AuthConfig{Mode: config.AuthModePassword},
			wantNil: true,
		},
		{
			name: "mock mode builds the dev provider",
			auth: config.AuthConfig{
				Mode:    config.AuthModeMock,
				DevAuth: config.DevAuthConfig{Subject: "dev-user", Email: "dev@example.org", FullName: "Dev User"},
			},
			wantType: &devauth.Provider{},
		},
		{
			name:    "mock mode without a subject fails",
			auth:    config.AuthConfig{Mode: config.AuthModeMock},
			wantErr: true,
		},
		{
			name:    "oauth mode without a client id fails",
			auth:    config.AuthConfig{Mode: config.AuthModeOAuth, OAuth: config.OAuthConfig{DiscoveryURL: "https://idp.example.org"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov, err := BuildAuthProvider(tt.auth, discardLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, prov)
				return
			}
			assert.IsType(t, tt.wantType, prov)
		})
	}
}

func TestFederatedEnabled(t *testing.T) {
	assert.False(t, FederatedEnabled(config.AuthConfig{Mode: config.AuthModePassword}))
	assert.True(t, FederatedEnabled(config.AuthConfig{Mode: config.AuthModeOAuth}))
	assert.True(t, FederatedEnabled(config.AuthConfig{Mode: config.AuthModeMock}))
}

func TestBuildAuthService_RequiresDependencies(t *testing.T) {
	profiles := &data.ProfileRepo{}
	identities := &data.IdentityRepo{}

	_, err := BuildAuthService(AuthConfig{Identities: identities, Profiles: profiles, Logger: discardLogger()})
	require.Error(t, err)

	_, err = BuildAuthService(AuthConfig{RedisClient: newRedis(t), Profiles: profiles, Logger: discardLogger()})
	require.Error(t, err)
}

func TestBuildAuthService_RejectsShortSecret(t *testing.T) {
	_, err := BuildAuthService(AuthConfig{
		Auth:        config.AuthConfig{Mode: config.AuthModePassword, JWTSecret: "short"},
		RedisClient: newRedis(t),
		Identities:  &data.IdentityRepo{},
		Profiles:    &data.ProfileRepo{},
		Logger:      discardLogger(),
	})
	require.Error(t, err)
}

func TestBuildAuthService_RejectsBadHintExpression(t *testing.T) {
	_, err := BuildAuthService(AuthConfig{
		Auth: config.AuthConfig{
			Mode:         config.AuthModePassword,
			JWTSecret:    testJWTSecret,
			RoleHintExpr: "user_metadata.[",
		},
		RedisClient: newRedis(t),
		Identities:  &data.IdentityRepo{},
		Profiles:    &data.ProfileRepo{},
		Logger:      discardLogger(),
	})
	require.Error(t, err)
}

func TestBuildAuthService_PasswordMode(t *testing.T) {
	comps, err := BuildAuthService(AuthConfig{
		Auth: config.AuthConfig{
			Mode:       config.AuthModePassword,
			JWTSecret:  testJWTSecret,
			Issuer:     "institute",
			BcryptCost: 4,
		},
		Redis:       config.RedisConfig{SessionPrefix: "session:", EventsChannel: "auth:session-events"},
		RedisClient: newRedis(t),
		Identities:  &data.IdentityRepo{},
		Profiles:    &data.ProfileRepo{},
		Logger:      discardLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, comps.Service)
	require.NotNil(t, comps.Events)
	assert.Same(t, comps.Events, comps.Service.Events())
}
