package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/ports"
)

// setupTestRedis starts an in-process Redis and returns a client bound to it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testSession(id string, expires time.Time) domainauth.Session {
	return domainauth.Session{
		ID:           id,
		UserID:       "user-123",
		Email:        "member@example.org",
		RefreshToken: "refresh-secret",
		RoleHint:     domainauth.RoleUser,
		ExpiresAt:    expires,
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	session := testSession("s-1", time.Now().Add(30*time.Minute))
	require.NoError(t, store.Save(ctx, session))

	retrieved, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, retrieved.UserID)
	assert.Equal(t, session.RefreshToken, retrieved.RefreshToken)
	assert.Equal(t, session.RoleHint, retrieved.RoleHint)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, time.Second)

	ttl := mr.TTL("session:s-1")
	assert.Greater(t, ttl, 29*time.Minute)
	assert.LessOrEqual(t, ttl, 30*time.Minute)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewSessionStore(client)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("s-del", time.Now().Add(time.Hour))))
	require.NoError(t, store.Delete(ctx, "s-del"))
	assert.False(t, mr.Exists("session:s-del"))

	_, err := store.Get(ctx, "s-del")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_TTLExpiration(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("s-ttl", time.Now().Add(2*time.Second))))
	mr.FastForward(3 * time.Second)

	_, err := store.Get(ctx, "s-ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_RecordExpiryWinsOverKeyTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	store := NewSessionStore(client, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("s-skew", now.Add(time.Minute))))
	clock = now.Add(2 * time.Minute)

	_, err := store.Get(ctx, "s-skew")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("session:s-skew"), "expired record should be cleaned up")
}

func TestSessionStore_CustomPrefix(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewSessionStore(client, WithPrefix("refresh:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("s-p", time.Now().Add(time.Hour))))
	assert.True(t, mr.Exists("refresh:s-p"))
	assert.False(t, mr.Exists("session:s-p"))
}

func TestSessionStore_SaveRejectsInvalid(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	err := store.Save(ctx, testSession("", time.Now().Add(time.Hour)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session ID cannot be empty")

	err = store.Save(ctx, testSession("s-old", time.Now().Add(-time.Minute)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestSessionStore_Swap(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	current := testSession("s-swap", time.Now().Add(time.Hour))
	require.NoError(t, store.Save(ctx, current))

	next := current
	next.PreviousRefreshToken = current.RefreshToken
	next.RefreshToken = "rotated-secret"
	require.NoError(t, store.Swap(ctx, next, "refresh-secret"))

	stored, err := store.Get(ctx, "s-swap")
	require.NoError(t, err)
	assert.Equal(t, "rotated-secret", stored.RefreshToken)

	// a second rotation from the same starting secret lost the race
	loser := current
	loser.RefreshToken = "other-secret"
	assert.ErrorIs(t, store.Swap(ctx, loser, "refresh-secret"), ports.ErrSessionConflict)

	stored, err = store.Get(ctx, "s-swap")
	require.NoError(t, err)
	assert.Equal(t, "rotated-secret", stored.RefreshToken)

	missing := testSession("s-gone", time.Now().Add(time.Hour))
	assert.ErrorIs(t, store.Swap(ctx, missing, "refresh-secret"), ports.ErrSessionConflict)
	assert.Error(t, store.Swap(ctx, testSession("s-swap", time.Now().Add(-time.Minute)), "rotated-secret"))
}
