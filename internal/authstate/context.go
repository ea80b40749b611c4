// Package authstate holds the client-side view of who is signed in and with which role.
//
// A Context resolves identity and role together and publishes them as one Snapshot.
// It is advisory: the access gate on the server is the only enforcement point.
package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// SessionSource reports the current session and notifies about changes to it.
type SessionSource interface {
	// Current returns the active session, or nil when signed out.
	Current(ctx context.Context) (*domainauth.Session, error)
	Subscribe(ctx context.Context) (<-chan domainauth.SessionEvent, func(), error)
}

// ProfileSource reads the caller's own profile row (restricted credentials).
type ProfileSource interface {
	GetOwn(ctx context.Context, userID string) (*domainauth.Profile, error)
}

// RoleSource records where a snapshot's role came from.
type RoleSource string

const (
	RoleFromProfile RoleSource = "profile"
	RoleFromHint    RoleSource = "hint"
	RoleFromNone    RoleSource = "none"
)

// Snapshot is one consistent resolution of identity and role.
type Snapshot struct {
	User       *domainauth.Identity
	Session    *domainauth.Session
	Role       domainauth.Role
	RoleSource RoleSource
	// Loading is true while a resolution newer than this snapshot is pending.
	// Consumers must not make access decisions while it is set.
	Loading bool
	// Seq identifies the resolution that produced the snapshot.
	Seq uint64
}

// SignedIn reports whether the snapshot carries an identity.
func (s Snapshot) SignedIn() bool { return s.User != nil }

// Options configures a Context.
type Options struct {
	Sessions SessionSource
	Profiles ProfileSource
	// RoleHint extracts the lower-trust role hint from session metadata.
	// When nil the session's RoleHint field is used.
	RoleHint func(metadata map[string]any) domainauth.Role
	Logger   *slog.Logger
}

// ErrClosed is returned by operations on a closed Context.
var ErrClosed = errors.New("auth context closed")

// Context is the single owner of identity and role state inside a client process.
type Context struct {
	sessions SessionSource
	profiles ProfileSource
	hint     func(*domainauth.Session) domainauth.Role
	logger   *slog.Logger

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	snap     Snapshot
	started  uint64 // newest resolution started
	closed   bool
	stopSub  func()
	watchers map[int]chan Snapshot
	nextID   int
}

// New constructs a Context in the Loading state. Call Start to begin resolving.
func New(opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hint := func(s *domainauth.Session) domainauth.Role { return domainauth.ParseRole(string(s.RoleHint)) }
	if opts.RoleHint != nil {
		extract := opts.RoleHint
		hint = func(s *domainauth.Session) domainauth.Role { return extract(s.Metadata) }
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Context{
		sessions:  opts.Sessions,
		profiles:  opts.Profiles,
		hint:      hint,
		logger:    logger.With("component", "auth_context"),
		runCtx:    runCtx,
		cancelRun: cancel,
		snap:      Snapshot{Role: domainauth.RoleNone, RoleSource: RoleFromNone, Loading: true},
		watchers:  make(map[int]chan Snapshot),
	}
}

// Start subscribes to session changes and kicks off the initial resolution.
// ctx bounds only the setup; the subscription lives until Close.
func (c *Context) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}

	events, stop, err := c.sessions.Subscribe(c.runCtx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		stop()
		return ErrClosed
	}
	c.stopSub = stop
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		for ev := range events {
			c.logger.Debug("session event", "kind", ev.Kind, "session_id", ev.SessionID)
			c.trigger()
		}
	}()

	c.trigger()
	return nil
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Refresh re-runs the resolution, e.g. after the caller knows the session changed.
func (c *Context) Refresh() { c.trigger() }

// Snapshot returns the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Loading reports whether a resolution is pending.
func (c *Context) Loading() bool { return c.Snapshot().Loading }

// Watch returns a channel receiving the current snapshot followed by every change.
// Slow watchers only ever see the latest snapshot. The cancel func is idempotent.
func (c *Context) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	ch <- c.snap
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w, ok := c.watchers[id]; ok {
				delete(c.watchers, id)
				close(w)
			}
		})
	}
}

// WaitResolved blocks until the context is not loading and returns that snapshot.
func (c *Context) WaitResolved(ctx context.Context) (Snapshot, error) {
	ch, cancel := c.Watch()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return Snapshot{}, ErrClosed
			}
			if !s.Loading {
				return s, nil
			}
		}
	}
}

// Close unsubscribes, cancels in-flight resolutions and closes every watcher.
// No snapshot is published after Close returns.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stop := c.stopSub
	for id, w := range c.watchers {
		delete(c.watchers, id)
		close(w)
	}
	c.mu.Unlock()

	c.cancelRun()
	if stop != nil {
		stop()
	}
	c.wg.Wait()
}

// trigger starts a resolution numbered after every earlier one and marks the state loading.
func (c *Context) trigger() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.started++
	seq := c.started
	if !c.snap.Loading {
		c.snap.Loading = true
		c.broadcastLocked()
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.apply(seq, c.resolve(c.runCtx))
	}()
}

// resolve is a fresh read: session first, then the role for that session's identity.
// Events carry no state of their own; a SIGNED_OUT for another session of the same
// user leaves this one signed in.
func (c *Context) resolve(ctx context.Context) Snapshot {
	anonymous := Snapshot{Role: domainauth.RoleNone, RoleSource: RoleFromNone}

	sess, err := c.sessions.Current(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("session lookup failed; treating as signed out", "error", err)
		}
		return anonymous
	}
	if sess == nil || sess.UserID == "" {
		return anonymous
	}

	out := Snapshot{
		User:    &domainauth.Identity{ID: sess.UserID, Email: sess.Email},
		Session: sess,
	}
	p, err := c.profiles.GetOwn(ctx, sess.UserID)
	switch {
	case err == nil && p != nil:
		out.Role, out.RoleSource = p.Role, RoleFromProfile
	default:
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("profile lookup failed; using session hint", "user_id", sess.UserID, "error", err)
		}
		if r := c.hint(sess); r != domainauth.RoleNone {
			out.Role, out.RoleSource = r, RoleFromHint
		} else {
			out.Role, out.RoleSource = domainauth.RoleNone, RoleFromNone
		}
	}
	return out
}

// apply publishes a resolution unless a newer one has started since.
func (c *Context) apply(seq uint64, s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || seq != c.started {
		return
	}
	s.Seq = seq
	s.Loading = false
	c.snap = s
	c.broadcastLocked()
}

func (c *Context) broadcastLocked() {
	for _, w := range c.watchers {
		select {
		case <-w:
		default:
		}
		w <- c.snap
	}
}
