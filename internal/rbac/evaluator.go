package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store is the persistence port for role permission sets. ReadPermissions
// must return the whole serialized set for the role in one operation so the
// evaluator never observes a half-applied grant.
type Store interface {
	ReadPermissions(ctx context.Context, roleID string) ([]byte, error)
	WritePermissions(ctx context.Context, roleID string, serialized []byte) error
}

// Evaluator resolves whether a role may perform an action on a resource
// class. It holds no mutable state of its own: every evaluation reads an
// immutable snapshot from the store.
type Evaluator struct {
	store Store
}

func NewEvaluator(store Store) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("rbac: store is required")
	}
	return &Evaluator{store: store}, nil
}

// HasPermission reports whether the role grants the permission token.
// Unknown roles, malformed stored sets, and store failures all evaluate to
// false: denial is the only safe answer when the grant cannot be proven.
func (e *Evaluator) HasPermission(ctx context.Context, roleID, token string) bool {
	set, err := e.Permissions(ctx, roleID)
	if err != nil {
		return false
	}
	return set.Contains(token)
}

// Permissions loads the full typed permission set for a role.
func (e *Evaluator) Permissions(ctx context.Context, roleID string) (PermissionSet, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	raw, err := e.store.ReadPermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return ParsePermissions(raw)
}

// SetPermissions validates the set against the closed vocabulary and
// persists it. Validation happens here, before the write reaches the store;
// evaluation never needs to re-check.
func (e *Evaluator) SetPermissions(ctx context.Context, roleID string, set PermissionSet) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	serialized, err := set.Serialize()
	if err != nil {
		return err
	}
	return e.store.WritePermissions(ctx, roleID, serialized)
}
