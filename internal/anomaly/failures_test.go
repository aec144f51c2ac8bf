package anomaly

import (
	"context"
	"testing"
	"time"

	"custodia.org/internal/audit"
)

func TestDetectRepeatedFailures(t *testing.T) {
	ledger := audit.NewInMemoryLedger()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := func(principal, endpoint string, success bool, n int) {
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
	seed("p-1", "/v1/assets/confidential", false, 5)
	seed("p-1", "/v1/assets/image", false, 2)
	seed("p-2", "/v1/assets/confidential", true, 10)
	seed("p-2", "/v1/assets/confidential", false, 3)

	d, err := NewDetector(ledger, NewStaticResolver(nil))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	findings, err := d.DetectRepeatedFailures(ctx, 3)
	if err != nil {
		t.Fatalf("DetectRepeatedFailures: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected one finding, got %+v", findings)
	}
	f := findings[0]
	if f.PrincipalID != "p-1" || f.Endpoint != "/v1/assets/confidential" || f.Attempts != 5 {
		t.Fatalf("unexpected finding: %+v", f)
	}

	// Exactly at the threshold does not fire; strictly more does.
	if len(findings) != 1 {
		t.Fatalf("threshold must be exclusive: %+v", findings)
	}
}
