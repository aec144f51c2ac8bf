package audit

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidEvent = errors.New("audit: invalid event")

// Event is one append-only entry in the access ledger. Events are ordered
// by time per principal and never mutated or deleted.
type Event struct {
	RequestID   string    `json:"request_id"`
	Endpoint    string    `json:"endpoint"`
	OriginIP    string    `json:"origin_ip"`
	PrincipalID string    `json:"principal_id"`
	Success     bool      `json:"success"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Ledger is the persistence port for the access log. The anomaly detector
// reads it as a consistent-enough snapshot; it may be appended to
// concurrently.
type Ledger interface {
	AppendEvent(ctx context.Context, event Event) error
	ReadEventsForPrincipal(ctx context.Context, principalID string) ([]Event, error)
	ReadAllPrincipalIDs(ctx context.Context) ([]string, error)
}

// Validate checks the fields the ledger cannot reconstruct.
func (e Event) Validate() error {
	if e.Endpoint == "" || e.OriginIP == "" || e.PrincipalID == "" {
		return ErrInvalidEvent
	}
	return nil
}
