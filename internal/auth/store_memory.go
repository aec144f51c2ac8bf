package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements CredentialStore in process. Tests and single-node
// development use it; production uses the Postgres store.
type MemoryStore struct {
	mu         sync.RWMutex
	principals map[string]*Principal
	roles      map[string]*Role
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[string]*Principal),
		roles:      make(map[string]*Role),
		now:        time.Now,
	}
}

func (s *MemoryStore) CreatePrincipal(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.principals {
		if existing.Email == p.Email {
			return ErrConflict
		}
	}
	copied := *p
	s.principals[p.ID] = &copied
	return nil
}

func (s *MemoryStore) PrincipalByID(_ context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) PrincipalByEmail(_ context.Context, email string) (*Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.principals {
		if p.Email == email {
			copied := *p
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListPrincipals(_ context.Context) ([]*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Principal, 0, len(s.principals))
	for _, p := range s.principals {
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ApprovePrincipal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.Approved = true
	p.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) SetTOTPSecret(_ context.Context, id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.TOTPSecret = secret
	p.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) MarkEnrolled(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrNotFound
	}
	if p.MFAEnrolledAt.IsZero() {
		p.MFAEnrolledAt = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) RecordSignInSuccess(_ context.Context, id, originIP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.FailedAttempts = 0
	p.SignInCount++
	p.LastSignInIP = p.CurrentSignInIP
	p.CurrentSignInIP = originIP
	p.LastLoginAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) RecordSignInFailure(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.FailedAttempts++
	return nil
}

func (s *MemoryStore) SetRole(_ context.Context, principalID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[principalID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	p.RoleID = roleID
	p.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) CreateRole(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == role.Name {
			return ErrConflict
		}
	}
	copied := *role
	s.roles[role.ID] = &copied
	return nil
}

func (s *MemoryStore) RoleByID(_ context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *role
	return &copied, nil
}

func (s *MemoryStore) RoleByName(_ context.Context, name string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.Name == name {
			copied := *role
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListRoles(_ context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.roles))
	for _, role := range s.roles {
		copied := *role
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ CredentialStore = (*MemoryStore)(nil)
