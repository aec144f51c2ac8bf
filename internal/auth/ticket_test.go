package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// ticketStores yields every TicketStore implementation under the same suite.
func ticketStores(t *testing.T) map[string]TicketStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rs, err := NewRedisTicketStore(client)
	if err != nil {
		t.Fatalf("NewRedisTicketStore: %v", err)
	}
	return map[string]TicketStore{
		"memory": NewMemoryTicketStore(),
		"redis":  rs,
	}
}

func TestTicketStoreLifecycle(t *testing.T) {
	for name, store := range ticketStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			ticket := Ticket{
				ID:          "ticket-1",
				PrincipalID: "p-1",
				CreatedAt:   now,
				ExpiresAt:   now.Add(5 * time.Minute),
			}
			if err := store.Create(ctx, ticket); err != nil {
				t.Fatalf("Create: %v", err)
			}

			found, err := store.Find(ctx, "ticket-1")
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if found.PrincipalID != "p-1" || !found.ExpiresAt.Equal(ticket.ExpiresAt) {
				t.Fatalf("unexpected ticket: %+v", found)
			}

			if n, err := store.Fail(ctx, "ticket-1"); err != nil || n != 1 {
				t.Fatalf("Fail: n=%d err=%v", n, err)
			}
			if n, err := store.Fail(ctx, "ticket-1"); err != nil || n != 2 {
				t.Fatalf("Fail: n=%d err=%v", n, err)
			}

			if err := store.Consume(ctx, "ticket-1"); err != nil {
				t.Fatalf("Consume: %v", err)
			}
			if _, err := store.Find(ctx, "ticket-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("consumed ticket must be gone, got %v", err)
			}
			if _, err := store.Fail(ctx, "ticket-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("failing a missing ticket must report not found, got %v", err)
			}
		})
	}
}

func TestTicketStoreFindUnknown(t *testing.T) {
	for name, store := range ticketStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Find(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("got %v", err)
			}
		})
	}
}

func TestTicketStoreClaimStep(t *testing.T) {
	for name, store := range ticketStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fresh, err := store.ClaimStep(ctx, "p-1", 1234)
			if err != nil || !fresh {
				t.Fatalf("first claim: fresh=%v err=%v", fresh, err)
			}
			fresh, err = store.ClaimStep(ctx, "p-1", 1234)
			if err != nil {
				t.Fatalf("second claim: %v", err)
			}
			if fresh {
				t.Fatal("the same (principal, step) pair must claim only once")
			}
			// A different step or a different principal is unaffected.
			if fresh, err := store.ClaimStep(ctx, "p-1", 1235); err != nil || !fresh {
				t.Fatalf("next step: fresh=%v err=%v", fresh, err)
			}
			if fresh, err := store.ClaimStep(ctx, "p-2", 1234); err != nil || !fresh {
				t.Fatalf("other principal: fresh=%v err=%v", fresh, err)
			}
		})
	}
}

func TestRedisTicketStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisTicketStore(client)
	if err != nil {
		t.Fatalf("NewRedisTicketStore: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	ticket := Ticket{ID: "t-exp", PrincipalID: "p-1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := store.Create(ctx, ticket); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Find(ctx, "t-exp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired ticket must be gone, got %v", err)
	}
}

func TestNewTicketID(t *testing.T) {
	a, err := NewTicketID()
	if err != nil {
		t.Fatalf("NewTicketID: %v", err)
	}
	b, err := NewTicketID()
	if err != nil {
		t.Fatalf("NewTicketID: %v", err)
	}
	if a == b {
		t.Fatal("ids must be unique")
	}
	if len(a) < 32 {
		t.Fatalf("id too short: %d", len(a))
	}
}
