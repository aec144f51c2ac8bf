package audit

import (
	"context"
	"sort"
	"sync"
)

// InMemoryLedger implements Ledger with in-process concurrency safety.
// Used in tests and single-node development; production appends go to
// Postgres.
type InMemoryLedger struct {
	mu     sync.RWMutex
	events map[string][]Event // principal id -> time-ordered events
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{events: make(map[string][]Event)}
}

func (l *InMemoryLedger) AppendEvent(_ context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[event.PrincipalID] = append(l.events[event.PrincipalID], event)
	return nil
}

func (l *InMemoryLedger) ReadEventsForPrincipal(_ context.Context, principalID string) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.events[principalID]
	out := make([]Event, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (l *InMemoryLedger) ReadAllPrincipalIDs(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.events))
	for id := range l.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ Ledger = (*InMemoryLedger)(nil)
