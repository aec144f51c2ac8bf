package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"

	"custodia.org/internal/audit"
)

// staticRoles maps principal ids to role names for tests.
type staticRoles map[string]string

func (r staticRoles) RoleNameFor(_ context.Context, principalID string) (string, bool, error) {
	name, ok := r[principalID]
	return name, ok, nil
}

func TestEndpointHeatmap(t *testing.T) {
	ledger := audit.NewInMemoryLedger()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	seed := func(principal, endpoint string, at time.Time) {
		t.Helper()
		err := ledger.AppendEvent(ctx, audit.Event{
			RequestID:   "r",
			Endpoint:    endpoint,
			OriginIP:    "10.0.0.1",
			PrincipalID: principal,
			Success:     true,
			OccurredAt:  at,
		})
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	seed("p-1", "/v1/assets/image", base)
	seed("p-1", "/v1/assets/image", base.Add(5*time.Minute))
	seed("p-2", "/v1/assets/image", base.Add(10*time.Minute))
	seed("p-1", "/v1/assets/image", base.Add(2*time.Hour))
	seed("p-2", "/v1/auth/login", base)

	d, err := NewDetector(ledger, NewStaticResolver(nil))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	cells, err := d.EndpointHeatmap(ctx)
	if err != nil {
		t.Fatalf("EndpointHeatmap: %v", err)
	}
	want := []HeatmapCell{
		{Endpoint: "/v1/assets/image", Hour: 9, Count: 3},
		{Endpoint: "/v1/assets/image", Hour: 11, Count: 1},
		{Endpoint: "/v1/auth/login", Hour: 9, Count: 1},
	}
	if len(cells) != len(want) {
		t.Fatalf("expected %d cells, got %+v", len(want), cells)
	}
	for i, cell := range cells {
		if cell != want[i] {
			t.Fatalf("cell %d: got %+v want %+v", i, cell, want[i])
		}
	}
}

func TestDetectActivitySpikes(t *testing.T) {
	ledger := audit.NewInMemoryLedger()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := func(principal string, at time.Time) {
		t.Helper()
		err := ledger.AppendEvent(ctx, audit.Event{
			RequestID:   "r",
			Endpoint:    "/v1/assets/image",
			OriginIP:    "10.0.0.1",
			PrincipalID: principal,
			Success:     true,
			OccurredAt:  at,
		})
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	// p-steady: one request an hour for ten hours. The last hour matches
	// the baseline exactly, no spike.
	for i := 0; i < 10; i++ {
		seed("p-steady", now.Add(-time.Duration(9-i)*time.Hour))
	}
	// p-burst: the same slow history, then twenty requests in the last
	// ten minutes.
	for i := 0; i < 10; i++ {
		seed("p-burst", now.Add(-time.Duration(12-i)*time.Hour))
	}
	for i := 0; i < 20; i++ {
		seed("p-burst", now.Add(-time.Duration(i)*time.Minute/2))
	}
	// p-new: all events at one instant, no baseline to compare against.
	seed("p-new", now)
	seed("p-new", now)

	d, err := NewDetector(ledger, NewStaticResolver(nil),
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	findings, err := d.DetectActivitySpikes(ctx)
	if err != nil {
		t.Fatalf("DetectActivitySpikes: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected one spike, got %+v", findings)
	}
	f := findings[0]
	if f.PrincipalID != "p-burst" {
		t.Fatalf("unexpected principal: %+v", f)
	}
	if f.RecentRequests < 20 {
		t.Fatalf("recent count too low: %+v", f)
	}
	if f.HourlyBaseline <= 0 {
		t.Fatalf("baseline must be positive: %+v", f)
	}
}

func TestDetectPrivilegeEscalation(t *testing.T) {
	ledger := audit.NewInMemoryLedger()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := func(principal, endpoint string, success bool, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			err := ledger.AppendEvent(ctx, audit.Event{
				RequestID:   "r",
				Endpoint:    endpoint,
				OriginIP:    "10.0.0.1",
				PrincipalID: principal,
				Success:     success,
				OccurredAt:  base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("AppendEvent: %v", err)
			}
		}
	}
	seed("p-guest", "/v1/assets/confidential/:id", false, 4)
	seed("p-guest", "/v1/roles", true, 1)
	seed("p-guest", "/v1/assets/image", true, 6)
	seed("p-user", "/v1/principals", false, 2)
	seed("p-user", "/v1/assets/confidential/:id", true, 3)
	seed("p-admin", "/v1/roles", true, 9)
	seed("anonymous", "/v1/roles", false, 7)

	roles := staticRoles{
		"p-guest": "Guest",
		"p-user":  "Analyst",
		"p-admin": "Admin",
	}
	d, err := NewDetector(ledger, NewStaticResolver(nil), WithRoleDirectory(roles))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	findings, err := d.DetectPrivilegeEscalation(ctx)
	if err != nil {
		t.Fatalf("DetectPrivilegeEscalation: %v", err)
	}

	// Admin traffic and ordinary guest asset reads never appear. Known
	// principals only: the anonymous rows are dropped. Non-guest roles are
	// barred from administration surfaces but not from confidential assets.
	want := []EscalationFinding{
		{PrincipalID: "p-guest", Role: "Guest", Endpoint: "/v1/assets/confidential/:id", Succeeded: false, Attempts: 4},
		{PrincipalID: "p-user", Role: "Analyst", Endpoint: "/v1/principals", Succeeded: false, Attempts: 2},
		{PrincipalID: "p-guest", Role: "Guest", Endpoint: "/v1/roles", Succeeded: true, Attempts: 1},
	}
	if len(findings) != len(want) {
		t.Fatalf("expected %d findings, got %+v", len(want), findings)
	}
	for i, f := range findings {
		if f != want[i] {
			t.Fatalf("finding %d: got %+v want %+v", i, f, want[i])
		}
	}
}

func TestDetectPrivilegeEscalationNeedsDirectory(t *testing.T) {
	d, err := NewDetector(audit.NewInMemoryLedger(), NewStaticResolver(nil))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	if _, err := d.DetectPrivilegeEscalation(context.Background()); !errors.Is(err, ErrNoRoleDirectory) {
		t.Fatalf("expected ErrNoRoleDirectory, got %v", err)
	}
}
