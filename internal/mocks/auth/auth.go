package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider   = (*MockAuthProvider)(nil)
	_ ports.SessionStore   = (*MemorySessionStore)(nil)
	_ ports.SessionEvents  = (*MemoryEvents)(nil)
	_ ports.PasswordHasher = PlainHasher{}
	_ ports.BlobStore      = (*MemoryBlobStore)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error)

	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.ExternalIdentity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: domainauth.ExternalIdentity{
			Subject:  "mock-subject-1",
			Email:    "mock.user@example.org",
			Metadata: map[string]any{"provider": "mock", "full_name": "Mock User"},
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := orDefault(m.AuthURL, "https://mock-idp/auth")
	state := fmt.Sprintf("%s-%d", orDefault(m.StatePrefix, "state"), n)
	nonce := fmt.Sprintf("%s-%d", orDefault(m.NoncePrefix, "nonce"), n)
	return authURL, state, nonce, nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	user := m.DefaultUser
	if user.Subject == "" {
		user = NewMockAuthProvider().DefaultUser
	}
	return user, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || id == "" {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) Swap(_ context.Context, sess domainauth.Session, expected string) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[sess.ID]
	if !ok || stored.RefreshToken != expected {
		return ports.ErrSessionConflict
	}
	m.sessions[sess.ID] = sess
	return nil
}

// Len reports how many sessions are stored.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ErrNotFound is returned by mocks when an entity is not present.
type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var ErrNotFound error = notFoundError{}

// MemoryEvents records published events and fans them out to subscribers synchronously.
type MemoryEvents struct {
	mu          sync.Mutex
	published   []domainauth.SessionEvent
	subscribers map[int]chan domainauth.SessionEvent
	next        int
	PublishErr  error
}

// NewMemoryEvents creates an empty event bus.
func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{subscribers: make(map[int]chan domainauth.SessionEvent)}
}

func (m *MemoryEvents) Publish(_ context.Context, ev domainauth.SessionEvent) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, ev)
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (m *MemoryEvents) Subscribe(ctx context.Context) (<-chan domainauth.SessionEvent, func(), error) {
	m.mu.Lock()
	id := m.next
	m.next++
	ch := make(chan domainauth.SessionEvent, 32)
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ch, stop, nil
}

// Published returns a copy of every event published so far.
func (m *MemoryEvents) Published() []domainauth.SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domainauth.SessionEvent(nil), m.published...)
}

// Kinds returns the kinds of every event published so far, in order.
func (m *MemoryEvents) Kinds() []domainauth.EventKind {
	evs := m.Published()
	out := make([]domainauth.EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

// PlainHasher "hashes" by prefixing; only for tests where bcrypt cost would dominate.
type PlainHasher struct{}

func (PlainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (PlainHasher) Compare(hash, password string) error {
	if hash != "plain:"+password {
		return errors.New("password mismatch")
	}
	return nil
}

// MemoryBlobStore keeps uploads in memory and returns predictable URLs.
type MemoryBlobStore struct {
	BaseURL   string
	UploadErr error

	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryBlobStore creates a blob store serving from baseURL.
func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	return &MemoryBlobStore{BaseURL: baseURL, objects: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Upload(_ context.Context, obj ports.BlobObject) (string, error) {
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj.Body); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[obj.Key] = buf.Bytes()
	return strings.TrimRight(m.BaseURL, "/") + "/" + obj.Key, nil
}

// Object returns the stored bytes for key.
func (m *MemoryBlobStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}
