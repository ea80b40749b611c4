package httpx

import (
	"context"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// Viewer is the caller behind a request. Role is always the stored role read with
// elevated credentials, never a token claim.
type Viewer struct {
	UserID    string
	Email     string
	SessionID string
	Role      domainauth.Role
}

// viewerKey is an unexported context key type to avoid collisions across packages.
type viewerKey struct{}

// WithViewer returns a child context carrying v. A nil v returns ctx unchanged.
func WithViewer(ctx context.Context, v *Viewer) context.Context {
	if v == nil {
		return ctx
	}
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the viewer attached to ctx and whether one was present.
func ViewerFromContext(ctx context.Context) (*Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(*Viewer)
	return v, ok && v != nil
}

// ViewerRole returns the viewer's role, or RoleNone for anonymous requests.
func ViewerRole(ctx context.Context) domainauth.Role {
	if v, ok := ViewerFromContext(ctx); ok {
		return v.Role
	}
	return domainauth.RoleNone
}
