package asset

import (
	"context"
	"time"

	"custodia.org/internal/rbac"
)

// Store persists asset metadata. Implementations return ErrNotFound for
// missing or soft-deleted records unless stated otherwise.
type Store interface {
	CreateRecord(ctx context.Context, r *Record) error
	// RecordByID returns the record regardless of deletion state; callers
	// decide whether a soft-deleted record is visible.
	RecordByID(ctx context.Context, id string) (*Record, error)
	UpdateRecord(ctx context.Context, r *Record) error
	SoftDeleteRecord(ctx context.Context, id, deletedBy string, at time.Time) error
	// ListRecords returns live records of the given kind, newest first.
	ListRecords(ctx context.Context, kind rbac.Resource, limit, offset int) ([]*Record, error)
}
