package authstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// UnauthorizedPath is where every denied view sends the caller.
const UnauthorizedPath = "/unauthorized"

// ErrUnauthorized is the sentinel matched by every DeniedError.
var ErrUnauthorized = errors.New("unauthorized")

// DeniedError carries the redirect target for a denied view.
type DeniedError struct {
	Redirect string
	Reason   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("unauthorized (%s): redirect to %s", e.Reason, e.Redirect)
}

// Is makes errors.Is(err, ErrUnauthorized) hold for DeniedError.
func (e *DeniedError) Is(target error) bool { return target == ErrUnauthorized }

// GuardState is the per-view state: Loading, then Authorized or Denied.
type GuardState int

const (
	GuardLoading GuardState = iota
	GuardAuthorized
	GuardDenied
)

func (s GuardState) String() string {
	switch s {
	case GuardAuthorized:
		return "authorized"
	case GuardDenied:
		return "denied"
	default:
		return "loading"
	}
}

// Guard protects one view. Denied is terminal; Authorized falls back to Loading
// whenever the Context starts a new resolution.
type Guard struct {
	auth     *Context
	required domainauth.Role

	mu            sync.Mutex
	denied        *DeniedError
	authorizedSeq uint64
}

// NewGuard returns a guard requiring required for the view.
func NewGuard(auth *Context, required domainauth.Role) *Guard {
	return &Guard{auth: auth, required: required}
}

// State reports the guard's current state without blocking.
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.denied != nil {
		return GuardDenied
	}
	snap := g.auth.Snapshot()
	if snap.Loading || g.authorizedSeq == 0 || snap.Seq != g.authorizedSeq {
		return GuardLoading
	}
	return GuardAuthorized
}

// Wait blocks until the Context has resolved, then decides. It never decides while loading.
func (g *Guard) Wait(ctx context.Context) (Snapshot, error) {
	g.mu.Lock()
	if g.denied != nil {
		err := g.denied
		g.mu.Unlock()
		return Snapshot{}, err
	}
	g.mu.Unlock()

	snap, err := g.auth.WaitResolved(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case !snap.SignedIn():
		g.denied = &DeniedError{Redirect: UnauthorizedPath, Reason: "not signed in"}
	case !domainauth.CanAccess(g.required, snap.Role):
		g.denied = &DeniedError{Redirect: UnauthorizedPath, Reason: "role " + roleLabel(snap.Role) + " below " + string(g.required)}
	default:
		g.authorizedSeq = snap.Seq
		return snap, nil
	}
	return Snapshot{}, g.denied
}

// Run calls fetch only once the view is authorized. fetch should use the elevated
// admin API, which re-checks the role on the server.
func (g *Guard) Run(ctx context.Context, fetch func(ctx context.Context, snap Snapshot) error) error {
	snap, err := g.Wait(ctx)
	if err != nil {
		return err
	}
	return fetch(ctx, snap)
}

func roleLabel(r domainauth.Role) string {
	if r == domainauth.RoleNone {
		return "none"
	}
	return string(r)
}
