package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"io"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// BeginInput carries inputs for initiating a federated sign-in flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes a federated sign-in flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the asserted identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.ExternalIdentity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// SessionStore persists and retrieves refresh sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
	// Swap replaces a stored session only while its refresh secret still equals
	// expected. A missing session or a different secret yields ErrSessionConflict.
	Swap(ctx context.Context, sess domainauth.Session, expected string) error
}

// ErrSessionConflict is returned by SessionStore.Swap when the stored session changed.
var ErrSessionConflict = errors.New("session changed concurrently")

// SessionEvents fans out session change notifications.
type SessionEvents interface {
	Publish(ctx context.Context, ev domainauth.SessionEvent) error
	// Subscribe delivers events until ctx is canceled or the returned cancel func is called.
	Subscribe(ctx context.Context) (<-chan domainauth.SessionEvent, func(), error)
}

// ErrTokenExpired is returned by TokenCodec.Parse for a well-signed token past its expiry.
// The parsed claims are still returned alongside it.
var ErrTokenExpired = errors.New("access token expired")

// ErrTokenInvalid is returned by TokenCodec.Parse for malformed or badly signed tokens.
var ErrTokenInvalid = errors.New("access token invalid")

// TokenCodec issues and locally verifies access tokens.
type TokenCodec interface {
	Issue(claims domainauth.Claims) (string, error)
	Parse(token string) (domainauth.Claims, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BlobObject describes a file to store.
type BlobObject struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

// BlobStore uploads files and returns their public URL.
type BlobStore interface {
	Upload(ctx context.Context, obj BlobObject) (string, error)
}
