package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/institute-web/internal/core"
	"github.com/target/institute-web/internal/data"
	domainauth "github.com/target/institute-web/internal/domain/auth"
)

var (
	_ core.IdentityRepository = (*MemoryDirectory)(nil)
	_ core.ProfileRepository  = (*MemoryProfiles)(nil)
	_ core.OwnProfileReader   = (*MemoryProfiles)(nil)
)

// MemoryDirectory is an in-memory identity repository returning the data package sentinels.
type MemoryDirectory struct {
	mu       sync.Mutex
	accounts map[string]domainauth.Account
	Now      func() time.Time
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{accounts: make(map[string]domainauth.Account), Now: time.Now}
}

func (m *MemoryDirectory) Create(_ context.Context, acct *domainauth.Account) (*domainauth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(acct.Email)
	for _, a := range m.accounts {
		if a.Email == email {
			return nil, data.ErrEmailTaken
		}
	}
	stored := *acct
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Email = email
	stored.CreatedAt = m.Now()
	m.accounts[stored.ID] = stored
	id := stored.Identity
	return &id, nil
}

func (m *MemoryDirectory) GetByEmail(_ context.Context, email string) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range m.accounts {
		if a.Email == email {
			out := a
			return &out, nil
		}
	}
	return nil, data.ErrIdentityNotFound
}

func (m *MemoryDirectory) GetByID(_ context.Context, id string) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, data.ErrIdentityNotFound
	}
	return &a, nil
}

func (m *MemoryDirectory) GetBySubject(_ context.Context, provider, subject string) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if provider == "" || subject == "" {
		return nil, data.ErrIdentityNotFound
	}
	for _, a := range m.accounts {
		if a.Provider == provider && a.Subject == subject {
			out := a
			return &out, nil
		}
	}
	return nil, data.ErrIdentityNotFound
}

// MemoryProfiles is an in-memory profile store serving both the elevated and the restricted view.
// GetRoleErr and GetOwnErr simulate an unreachable store.
type MemoryProfiles struct {
	mu         sync.Mutex
	profiles   map[string]domainauth.Profile
	reads      int
	GetRoleErr error
	GetOwnErr  error
	Now        func() time.Time
}

// NewMemoryProfiles creates an empty profile store.
func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{profiles: make(map[string]domainauth.Profile), Now: time.Now}
}

// Put stores a profile row as-is, including roles outside the defined set.
func (m *MemoryProfiles) Put(id, email string, role domainauth.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	m.profiles[id] = domainauth.Profile{ID: id, Email: email, Role: role, CreatedAt: now, UpdatedAt: now}
}

// SetErrors replaces the simulated failures under the store lock.
func (m *MemoryProfiles) SetErrors(getRole, getOwn error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetRoleErr, m.GetOwnErr = getRole, getOwn
}

// Reads reports how many role reads hit the store.
func (m *MemoryProfiles) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *MemoryProfiles) Create(_ context.Context, id, email string) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	p := domainauth.Profile{ID: id, Email: email, Role: domainauth.RoleUser, CreatedAt: now, UpdatedAt: now}
	m.profiles[id] = p
	return &p, nil
}

func (m *MemoryProfiles) GetRole(_ context.Context, id string) (domainauth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.GetRoleErr != nil {
		return domainauth.RoleNone, m.GetRoleErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return domainauth.RoleNone, data.ErrProfileNotFound
	}
	return p.Role, nil
}

func (m *MemoryProfiles) SetRole(_ context.Context, id string, role domainauth.Role) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, data.ErrProfileNotFound
	}
	p.Role = role
	p.UpdatedAt = m.Now()
	m.profiles[id] = p
	return &p, nil
}

func (m *MemoryProfiles) List(_ context.Context) ([]*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domainauth.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetOwn is the restricted read: only the viewer's own row is visible.
func (m *MemoryProfiles) GetOwn(_ context.Context, viewerID string) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetOwnErr != nil {
		return nil, m.GetOwnErr
	}
	p, ok := m.profiles[viewerID]
	if !ok {
		return nil, data.ErrProfileNotFound
	}
	return &p, nil
}
