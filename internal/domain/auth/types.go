package auth

// Package auth contains domain-level types for identities, sessions and roles.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
// The zero value means "no role known".
type Role string

const (
	RoleNone  Role = ""
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a stored role string. Unrecognized values map to RoleNone.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r
	default:
		return RoleNone
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Identity is the stable account record issued by the auth service.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the server-side record persisted for a signed-in identity.
// ID doubles as the refresh token handle; RoleHint and Metadata are copied from
// identity metadata at sign-in and are never used for access decisions on the server.
// PreviousRefreshToken is the secret rotated out at RotatedAt and is honoured only
// within the refresh reuse interval.
type Session struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"user_id"`
	Email                string         `json:"email"`
	RefreshToken         string         `json:"refresh_token,omitempty"`
	PreviousRefreshToken string         `json:"previous_refresh_token,omitempty"`
	RotatedAt            time.Time      `json:"rotated_at,omitempty"`
	RoleHint             Role           `json:"role_hint,omitempty"`
	Metadata             map[string]any `json:"user_metadata,omitempty"`
	ExpiresAt            time.Time      `json:"expires_at"`
}

// Public returns a copy safe to hand to clients: the refresh secret is removed.
func (s Session) Public() Session {
	s.RefreshToken = ""
	s.PreviousRefreshToken = ""
	return s
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Tokens is the pair of credentials mirrored into client cookies.
type Tokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Claims is the locally verifiable content of an access token.
type Claims struct {
	UserID    string
	Email     string
	SessionID string
	// Metadata carries user metadata embedded at issue time (lower-trust role hint source).
	Metadata  map[string]any
	ExpiresAt time.Time
}

// Profile is the authoritative role record keyed by identity id.
type Profile struct {
	ID        string    `json:"id"         db:"id"`
	Email     string    `json:"email"      db:"email"`
	Role      Role      `json:"role"       db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EventKind enumerates session change notifications.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// SessionEvent is emitted whenever a session is created, refreshed or destroyed,
// or when the identity behind it changes (role update).
type SessionEvent struct {
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Session   *Session  `json:"session,omitempty"`
}

// ExternalIdentity is what a federated identity provider asserts after a successful exchange.
type ExternalIdentity struct {
	Subject  string
	Email    string
	Metadata map[string]any
}

// Account is an Identity together with its stored credentials.
// PasswordHash is empty for federated-only accounts.
type Account struct {
	Identity
	PasswordHash string
	Provider     string
	Subject      string
	Metadata     map[string]any
}
