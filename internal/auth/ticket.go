package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"sync"
	"time"
)

const (
	// Tickets bridge password verification and the OTP challenge; they are
	// short-lived by design.
	defaultTicketTTL = 5 * time.Minute

	// stepClaimTTL covers the accepted skew window so a code cannot be
	// replayed across a fresh login within the same TOTP step.
	stepClaimTTL = 3 * totpPeriod * time.Second
)

// Ticket is the ephemeral pending-MFA state between a successful password
// check and a successful OTP challenge. It is consumed on success or once
// the failure budget is spent.
type Ticket struct {
	ID          string
	PrincipalID string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// TicketStore is the single authoritative lookup for pending-MFA state.
// Fail must be an atomic increment-and-get so concurrent challenges cannot
// race the failure counter; ClaimStep must atomically claim a (principal,
// TOTP step) pair exactly once.
type TicketStore interface {
	Create(ctx context.Context, t Ticket) error
	Find(ctx context.Context, id string) (Ticket, error)
	Fail(ctx context.Context, id string) (int, error)
	ClaimStep(ctx context.Context, principalID string, step int64) (bool, error)
	Consume(ctx context.Context, id string) error
}

// NewTicketID returns an opaque, unguessable ticket reference.
func NewTicketID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// MemoryTicketStore keeps tickets in process. Suitable for tests and
// single-node deployments; multi-node deployments use the Redis store.
type MemoryTicketStore struct {
	mu      sync.Mutex
	tickets map[string]*memRecord
	steps   map[string]time.Time // principalID:step -> claim expiry
	now     func() time.Time
}

type memRecord struct {
	ticket   Ticket
	failures int
}

func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{
		tickets: make(map[string]*memRecord),
		steps:   make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryTicketStore) Create(_ context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = &memRecord{ticket: t}
	return nil
}

func (s *MemoryTicketStore) Find(_ context.Context, id string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tickets[id]
	if !ok || s.now().After(rec.ticket.ExpiresAt) {
		delete(s.tickets, id)
		return Ticket{}, ErrNotFound
	}
	return rec.ticket, nil
}

func (s *MemoryTicketStore) Fail(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tickets[id]
	if !ok {
		return 0, ErrNotFound
	}
	rec.failures++
	return rec.failures, nil
}

func (s *MemoryTicketStore) ClaimStep(_ context.Context, principalID string, step int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	key := stepKey(principalID, step)
	if expiry, ok := s.steps[key]; ok && now.Before(expiry) {
		return false, nil
	}
	// Opportunistic sweep of expired claims.
	for k, expiry := range s.steps {
		if now.After(expiry) {
			delete(s.steps, k)
		}
	}
	s.steps[key] = now.Add(stepClaimTTL)
	return true, nil
}

func (s *MemoryTicketStore) Consume(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, id)
	return nil
}

func stepKey(principalID string, step int64) string {
	return principalID + ":" + strconv.FormatInt(step, 10)
}

var _ TicketStore = (*MemoryTicketStore)(nil)
